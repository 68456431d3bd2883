// Package ui renders the terminal output of wsgate-client.
//
// Commands print a Header describing what they are about to do, then a
// Result box once the reply arrives or the attempt fails. Rendering uses
// Lipgloss. When stdout is not a terminal, results fall back to plain
// "key: value" lines so the output stays scriptable.
//
// Example:
//
//	fmt.Println(ui.NewHeader("Data request", "wsgate-client send data.csv",
//	    map[string]string{"Server": addr}).Render())
//
//	fmt.Println(ui.NewSuccessResult("Response received",
//	    ui.Detail{Key: "Rows", Value: payload}).Render())
//
// # Logging Integration
//
// zap logging is controlled by the WSGATE_LOG_LEVEL environment variable.
// When it is unset logging is silent and only these components print.
package ui
