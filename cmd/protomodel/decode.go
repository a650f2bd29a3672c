package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jhump/protomodel/codec"
)

func getCmdDecode(gs *globalState) *cobra.Command {
	var (
		typeName       string
		discardUnknown bool
		format         string
	)
	cmd := &cobra.Command{
		Use:   "decode --type NAME FILE...",
		Short: "Decode a base64-encoded message read from standard input",
		Example: `  protomodel encode --type acme.Money --set units=12 acme/common.proto |
    protomodel decode --type acme.Money acme/common.proto`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, _, err := loadFiles(cmd.Context(), gs, args)
			if err != nil {
				return err
			}
			md, err := lookupMessage(pool, typeName)
			if err != nil {
				return err
			}
			input, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("could not read input: %w", err)
			}
			b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(input)))
			if err != nil {
				return fmt.Errorf("input is not valid base64: %w", err)
			}
			engine := codec.NewEngine(codec.WithLogger(gs.logger))
			msg, err := engine.Unmarshal(b, md)
			if err != nil {
				return err
			}
			if discardUnknown {
				msg.DiscardUnknown()
			}
			gs.logger.WithField("bytes", len(b)).Debug("decoded message")

			var out []byte
			switch format {
			case "text":
				out, err = engine.EncodeText(msg)
			case "json":
				out, err = engine.EncodeJSON(msg)
			default:
				return fmt.Errorf("unsupported format %q", format)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(out)))
			return err
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "fully-qualified name of the message type")
	cmd.Flags().BoolVar(&discardUnknown, "discard-unknown", false, "drop fields that are not part of the message type")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
