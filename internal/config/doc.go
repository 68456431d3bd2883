// Package config loads and saves the YAML configuration shared by
// wsgate-server and wsgate-client.
//
// # Configuration File Location
//
// The file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/wsgate/config.yaml or $HOME/.config/wsgate/config.yaml
//   - macOS: $HOME/.config/wsgate/config.yaml
//   - Windows: %LOCALAPPDATA%\wsgate\config.yaml
//
// A missing file is not an error; Load returns Default. Values present in
// the file override the defaults field by field, and command line flags
// override both.
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.Server.Port = 9000
//	if err := cfg.Save(""); err != nil {
//	    log.Fatal(err)
//	}
//
// Save writes through a temporary file and rename, and a package mutex
// serializes concurrent writers within one process.
package config
