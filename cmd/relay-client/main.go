// Command relay-client is a headless participant for a relay server.
//
//	relay-client [--server URL] upload <file>
//	relay-client [--server URL] listen [--out DIR]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"secure-relay-backend/internal/client"
	"secure-relay-backend/internal/logging"
	"secure-relay-backend/internal/models"
)

var errUsage = errors.New("usage: relay-client upload <file>")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "relay-client",
		Usage:  "Send files to and receive files from an encrypted relay",
		Writer: out,
		Flags:  []cli.Flag{serverFlag, logLevelFlag},
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "Upload a file for encryption and broadcast",
				ArgsUsage: "<file>",
				Action:    runUpload,
			},
			{
				Name:   "listen",
				Usage:  "Receive broadcasts, decrypt them through the relay and save them",
				Flags:  []cli.Flag{outDirFlag},
				Action: runListen,
			},
		},
	}
}

func connect(c *cli.Context) (*client.RelayClient, *slog.Logger, error) {
	server := c.String(serverFlag.Name)
	if err := client.CheckServerConnectivity(server); err != nil {
		return nil, nil, err
	}
	logger := logging.New(c.App.ErrWriter, c.String(logLevelFlag.Name))
	return client.New(server, logger), logger, nil
}

func runUpload(c *cli.Context) error {
	if c.NArg() != 1 {
		return errUsage
	}
	path := c.Args().First()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	rc, _, err := connect(c)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	if err := rc.Upload(c.Context, name, fileType(name), data); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "sent %s (%s)\n", name, humanize.Bytes(uint64(len(data))))
	return nil
}

func runListen(c *cli.Context) error {
	rc, logger, err := connect(c)
	if err != nil {
		return err
	}
	dir := c.String(outDirFlag.Name)
	out := c.App.Writer

	return rc.Listen(c.Context, client.Handlers{
		OnStatus: func(_ bool, msg string) { fmt.Fprintln(out, msg) },
		OnBroadcast: func(msg *models.BroadcastMessage) {
			data, err := rc.DecryptFile(c.Context, msg)
			if err != nil {
				logger.Error("decrypt failed", "file", msg.Filename, "err", err)
				return
			}
			path, err := saveFile(dir, msg.Filename, data)
			if err != nil {
				logger.Error("save failed", "file", msg.Filename, "err", err)
				return
			}
			fmt.Fprintf(out, "received %s (%s)\n", path, humanize.Bytes(uint64(len(data))))
		},
		OnChunk: func(chunk json.RawMessage) {
			logger.Debug("stream chunk", "size", humanize.Bytes(uint64(len(chunk))))
		},
	})
}

// saveFile writes data under dir using only the base of name, so a sender
// cannot pick the destination directory.
func saveFile(dir, name string, data []byte) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		base = "download"
	}
	path := filepath.Join(dir, base)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func fileType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
