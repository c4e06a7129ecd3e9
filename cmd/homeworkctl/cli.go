package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/homework-lens/backend/internal/api"
	"github.com/homework-lens/backend/internal/app"
	"github.com/homework-lens/backend/internal/ingest"
	"github.com/homework-lens/backend/internal/models"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(a *app.App) *cli.App {
	cliApp := &cli.App{
		Name:    "homeworkctl",
		Usage:   "Manage the homework image upload cache",
		Version: Version,
		Commands: []*cli.Command{
			cacheCmd(a),
			inlineCmd(a),
			listCmd(a),
			encodeCmd(a),
			removeCmd(a),
			clearCmd(a),
			verifyCmd(a),
			submitCmd(a),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

// cacheCmd creates the cache command.
func cacheCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "cache",
		Usage:     "Copy local files or URLs into the managed directory",
		ArgsUsage: "<uri> [uri...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "File name hint (single source only)"},
			&cli.StringFlag{Name: "mime", Aliases: []string{"m"}, Usage: "MIME type hint (single source only)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(api.NewValidationError("uri"))
			}

			sources := make([]ingest.ExternalSource, 0, c.NArg())
			for _, uri := range c.Args().Slice() {
				sources = append(sources, ingest.ExternalSource{URI: uri})
			}
			if len(sources) == 1 {
				sources[0].FileName = c.String("name")
				sources[0].MimeType = c.String("mime")
			}

			result, err := a.Registry.CacheUploads(c.Context, sources)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, result)
		},
	}
}

// inlineCmd creates the inline command.
func inlineCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "inline",
		Usage: "Cache a base64 data URL (reads from --data or stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "data:<mime>;base64,<body>"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Suggested file name"},
		},
		Action: func(c *cli.Context) error {
			payload := c.String("data")
			if payload == "" && stdinHasData() {
				text, err := readStdin()
				if err != nil {
					return outputError(err)
				}
				payload = text
			}
			if payload == "" {
				return outputError(api.NewValidationError("data"))
			}

			rec, err := a.Registry.IngestInline(c.Context, ingest.InlineSource{
				DataURL:       payload,
				SuggestedName: c.String("name"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, rec)
		},
	}
}

// listCmd creates the list command.
func listCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List cached uploads, most recent first",
		Action: func(c *cli.Context) error {
			snap := a.Registry.Snapshot()
			if snap.Records == nil {
				snap.Records = []models.UploadRecord{}
			}
			return outputJSON(c, snap)
		},
	}
}

// encodeCmd creates the encode command.
func encodeCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "encode",
		Usage:     "Print data URLs for the given uploads (all when none given)",
		ArgsUsage: "[id...]",
		Action: func(c *cli.Context) error {
			payloads, err := a.Registry.EncodeSelection(c.Context, c.Args().Slice())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, payloads)
		},
	}
}

// removeCmd creates the remove command.
func removeCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Delete an upload and its cached file",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(api.NewValidationError("id"))
			}
			id := c.Args().First()
			if err := a.Registry.Remove(c.Context, id); err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"removed": id})
		},
	}
}

// clearCmd creates the clear command.
func clearCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every cached upload",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm removal of all uploads"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				return cli.Exit("refusing to clear without --yes", 1)
			}
			count := len(a.Registry.List())
			if err := a.Registry.ClearAll(c.Context); err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"cleared": count})
		},
	}
}

// verifyCmd creates the verify command.
func verifyCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check a cached file against its recorded digest",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(api.NewValidationError("id"))
			}
			id := c.Args().First()
			ok, err := a.Registry.VerifyDigest(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"id": id, "intact": ok})
		},
	}
}

// submitCmd creates the submit command.
func submitCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Send uploads to the correction workflow (all when no ids given)",
		ArgsUsage: "[id...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "student", Aliases: []string{"s"}, Required: true, Usage: "Student id"},
			&cli.StringFlag{Name: "subject", Required: true, Usage: "Subject name"},
			&cli.StringSliceFlag{Name: "meta", Usage: "Metadata entry key=value (repeatable)"},
		},
		Action: func(c *cli.Context) error {
			metadata, err := parseMetadata(c.StringSlice("meta"))
			if err != nil {
				return outputError(err)
			}

			payloads, err := a.Registry.EncodeSelection(c.Context, c.Args().Slice())
			if err != nil {
				return outputError(err)
			}
			if len(payloads) == 0 {
				return outputError(api.NewValidationError("ids"))
			}

			result, err := a.Workflow.Run(c.Context, models.WorkflowInput{
				StudentID: c.String("student"),
				Subject:   c.String("subject"),
				Images:    models.ImagesFromPayloads(payloads),
				Metadata:  metadata,
			})
			if err != nil {
				for _, p := range payloads {
					a.Registry.ReportError(p.ID, err.Error())
				}
				return outputError(err)
			}
			return outputJSON(c, result)
		},
	}
}

// outputJSON writes v as indented JSON to the app's writer.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", apiErr.Code, apiErr.Message), 1)
	}
	mapped := api.FromDomainError(err)
	return cli.Exit(fmt.Sprintf("[%s] %s", mapped.Code, err.Error()), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseMetadata turns key=value pairs into a metadata map.
func parseMetadata(entries []string) (map[string]any, error) {
	metadata := make(map[string]any, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, api.NewBadRequestError(fmt.Sprintf("invalid metadata entry %q, want key=value", entry), nil)
		}
		metadata[key] = strings.TrimSpace(value)
	}
	return metadata, nil
}
