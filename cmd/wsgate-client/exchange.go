package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/muurk/wsgate/internal/config"
	"github.com/muurk/wsgate/internal/discovery"
	"github.com/muurk/wsgate/internal/logging"
	"github.com/muurk/wsgate/internal/protocol"
	"github.com/muurk/wsgate/internal/server"
	"github.com/muurk/wsgate/internal/session"
	"github.com/muurk/wsgate/internal/tick"
	"github.com/muurk/wsgate/internal/ui"
	"github.com/muurk/wsgate/internal/version"
)

const clientSessionID = "client"

var (
	errNoReply    = errors.New("no reply before timeout")
	errConnection = errors.New("connection lost before reply")
)

// request is one message to send and how to present the reply.
type request struct {
	title   string
	command string
	params  map[string]string
	message protocol.Message
	label   string
}

// exchange connects, sends req.message, and runs the tick loop until the
// reply arrives, the session ends or the response timeout expires.
func exchange(ctx context.Context, cfg *config.Config, req request) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	target, err := resolveTarget(ctx, cfg)
	if err != nil {
		fmt.Println(ui.NewFailureResult("Discovery failed", err, []string{
			"Start the server with --announce",
			"Check that multicast (UDP 5353) is allowed",
			"Use --host and --port instead",
		}).Render())
		return err
	}
	host, port, err := splitTarget(target)
	if err != nil {
		return err
	}

	params := map[string]string{"Server": target}
	for k, v := range req.params {
		params[k] = v
	}
	fmt.Println(ui.NewHeader(req.title, req.command, params).Render())

	var (
		reply    string
		replied  bool
		statuses []string
	)
	stop := func() {}
	onReply := func(_ string, payload string) {
		reply, replied = payload, true
		stop()
	}
	onStatus := func(_ string, status string) {
		statuses = append(statuses, status)
		if showStatus {
			fmt.Println(renderStatus(status))
		}
	}

	ops, err := server.ClientOperations(logger.Named("ops"), onReply, onStatus)
	if err != nil {
		return err
	}
	sessCfg := cfg.Session.SessionOptions()
	sessCfg.UserAgent = version.UserAgent("wsgate-client")

	nm := server.New(server.Config{Session: sessCfg}, ops, server.WithLogger(logger.Named("network")))
	if err := nm.Run(ctx); err != nil {
		return err
	}
	defer func() {
		finishCtx, cancel := context.WithTimeout(context.Background(), cfg.Session.PingInterval)
		defer cancel()
		if err := nm.Finish(finishCtx); err != nil {
			logger.Warn("Session did not close in time", zap.Error(err))
		}
	}()

	s, err := nm.ConnectAsClient(clientSessionID, host, port)
	if err != nil {
		return err
	}
	if !s.WaitForOpen(cfg.Client.ConnectTimeout) {
		err := fmt.Errorf("session %s after %s (%s)", s.State(), cfg.Client.ConnectTimeout, failedStep(s))
		fmt.Println(ui.NewFailureResult("Could not connect", err, []string{
			"Is wsgate-server running on " + target + "?",
			"Raise --connect-timeout on slow networks",
		}).Render())
		return err
	}

	if !s.Send(req.message) {
		err := fmt.Errorf("session refused a %d byte message", req.message.Len())
		fmt.Println(ui.NewFailureResult("Send failed", err, []string{
			"Check session.max_message_size in the config file",
		}).Render())
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Client.ResponseTimeout)
	defer cancel()
	stop = cancel

	ticks := tick.NewManager(cfg.Server.TickInterval, logger.Named("tick"))
	ticks.Add("handleIncomingMessages", func() {
		nm.HandleIncomingMessages()
		select {
		case <-s.Done():
			cancel()
		default:
		}
	})
	ticks.Run(waitCtx)

	// A reply may have been queued right before the session closed.
	nm.HandleIncomingMessages()

	if replied {
		result := ui.NewSuccessResult("Reply received", ui.Detail{Key: req.label, Value: reply})
		if id := yourID(statuses); id != "" {
			result.AddDetail("Session", id)
		}
		fmt.Println(result.Render())
		return nil
	}

	select {
	case <-s.Done():
		fmt.Println(ui.NewFailureResult("Connection lost", fmt.Errorf("%w: session %s", errConnection, s.State()), nil).Render())
		return errConnection
	default:
	}
	fmt.Println(ui.NewWarningResult("No reply").AddDetail("Waited", cfg.Client.ResponseTimeout.String()).Render())
	return errNoReply
}

// resolveTarget returns host:port from the flags and config, or from mDNS
// when --discover is set.
func resolveTarget(ctx context.Context, cfg *config.Config) (string, error) {
	if !discover {
		return net.JoinHostPort(cfg.Client.Host, strconv.Itoa(cfg.Client.Port)), nil
	}
	scanner := discovery.NewScanner()
	scanner.Timeout = cfg.Client.DiscoverTimeout
	svc, err := scanner.WaitForServer(ctx, instance)
	if err != nil {
		return "", err
	}
	return svc.Address(), nil
}

// splitTarget splits a host:port server address.
func splitTarget(target string) (string, string, error) {
	host, port, err := net.SplitHostPort(target)
	if err != nil {
		return "", "", fmt.Errorf("invalid server address %q: %w", target, err)
	}
	return host, port, nil
}

func failedStep(s *session.Session) string {
	if op := s.FailedOperation(); op != "" {
		return "failed during " + op
	}
	return "still " + s.State().String()
}

func yourID(statuses []string) string {
	if len(statuses) == 0 {
		return ""
	}
	for _, f := range server.ParseStatus(statuses[len(statuses)-1]) {
		if f.Key == "your_id" {
			return f.Value
		}
	}
	return ""
}

func renderStatus(status string) string {
	r := ui.NewSuccessResult("Server status")
	for _, f := range server.ParseStatus(status) {
		r.AddDetail(f.Key, f.Value)
	}
	return r.Render()
}
