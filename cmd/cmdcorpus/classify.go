package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"cmdcorpus/internal/classify"
)

type classifyOutput struct {
	Command    string           `json:"command"`
	Normalized string           `json:"normalized"`
	Kind       string           `json:"kind"`
	Verdict    classify.Verdict `json:"verdict"`
	Signal     classify.Signal  `json:"signal,omitempty"`
}

func newClassifyCmd(load configLoader) *cobra.Command {
	var (
		hint    string
		explain bool
		lines   bool
	)

	cmd := &cobra.Command{
		Use:   "classify [command...]",
		Short: "Classify a command given as arguments or on stdin",
		Long: `Classify prints a JSON verdict for one command blob. Without arguments the
whole of stdin is one blob; with --lines every stdin line is classified
separately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			c, err := newClassifier(cfg)
			if err != nil {
				return err
			}

			var blobs []string
			switch {
			case len(args) > 0:
				blobs = []string{strings.Join(args, " ")}
			case lines:
				scanner := bufio.NewScanner(cmd.InOrStdin())
				scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
				for scanner.Scan() {
					if strings.TrimSpace(scanner.Text()) != "" {
						blobs = append(blobs, scanner.Text())
					}
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
			default:
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				blobs = []string{string(data)}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			for _, blob := range blobs {
				v := c.Classify(blob, hint)
				out := classifyOutput{
					Command:    blob,
					Normalized: classify.Normalize(blob),
					Kind:       v.Kind(),
					Verdict:    v,
				}
				if explain {
					out.Signal = c.Explain(blob)
				}
				if err := enc.Encode(out); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&hint, "hint", "", "Dataset shell label (e.g. powershell, bash, command_prompt)")
	cmd.Flags().BoolVar(&explain, "explain", false, "Include the signal that made the blob a script")
	cmd.Flags().BoolVar(&lines, "lines", false, "Classify each stdin line separately")
	return cmd
}
