package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/smpctl/internal/mgmt"
	"github.com/muurk/smpctl/internal/smp"
)

func init() {
	rawCmd.Flags().Uint16Var(&rawGroup, "group", 0, "Management group ID")
	rawCmd.Flags().Uint8Var(&rawCommand, "command", 0, "Command ID within the group")
	rawCmd.Flags().BoolVar(&rawRead, "read", false, "Send a read request instead of a write")
	_ = rawCmd.MarkFlagRequired("group")
	rootCmd.AddCommand(rawCmd)
}

var (
	rawGroup   uint16
	rawCommand uint8
	rawRead    bool
)

var rawCmd = &cobra.Command{
	Use:   "raw --group G --command C [JSON]",
	Short: "Send a command to any group with a JSON object as the body",
	Example: `  smpctl raw --group 64 --command 0 '{"led": 1, "on": true}'
  smpctl raw --group 0 --command 0 '{"d": "hello"}'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := parseRawBody(args)
		if err != nil {
			return err
		}
		op := smp.OpWrite
		if rawRead {
			op = smp.OpRead
		}

		return device(cmd, "Raw command", func(ctx context.Context, s *session) error {
			g := mgmt.NewCustom(s.processor, s.options()...)
			var res any
			if err := s.run(ctx, g, func() error { return g.StartCommand(rawGroup, rawCommand, op, body, &res) }); err != nil {
				return err
			}
			if s.printer.JSON() {
				return s.printer.PrintJSON(map[string]any{
					"group":    rawGroup,
					"command":  rawCommand,
					"response": res,
				})
			}
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("response cannot be shown as JSON: %w", err)
			}
			s.printer.Println(string(out))
			return nil
		})
	},
}

// parseRawBody decodes the optional JSON object argument. Numbers keep their
// text so integers are sent as CBOR integers.
func parseRawBody(args []string) (map[string]any, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(args[0]))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("body must be a JSON object: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("body must be a single JSON object")
	}
	return body, nil
}
