package cmd

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/nanoprobe/internal/frame"
	"firestige.xyz/nanoprobe/internal/frameset"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <file>",
	Short: "Parse FrameSets from a file and print them as YAML",
	Long: `Parse a datagram holding one or more FrameSets and dump them as YAML.

The input is raw bytes, or hex text with --hex. Signatures are verified with
the signing settings of the config file when --config is given; otherwise
only unkeyed signatures can be checked.

Examples:
  nanoprobe decode capture.bin
  nanoprobe decode --hex frameset.txt
  nanoprobe decode -c /etc/nanoprobe/config.yml capture.bin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[0], err)
		}

		var parser *frameset.Parser
		if cmd.Flags().Changed("config") {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if parser, err = newParser(cfg); err != nil {
				return err
			}
		} else {
			parser = frameset.NewParser(frameset.WithSkipUnknown(decodeSkipUnknown))
		}
		return runDecode(parser, args[0], data, decodeHex, cmd.OutOrStdout())
	},
}

var (
	decodeHex         bool
	decodeSkipUnknown bool
)

func init() {
	decodeCmd.Flags().BoolVar(&decodeHex, "hex", false, "input is hex text")
	decodeCmd.Flags().BoolVar(&decodeSkipUnknown, "skip-unknown", false, "skip unregistered frame types")
}

type frameDoc struct {
	Type  uint16 `yaml:"type"`
	Name  string `yaml:"name,omitempty"`
	Len   int    `yaml:"len"`
	Value string `yaml:"value"`
}

type frameSetDoc struct {
	Type    string     `yaml:"type"`
	Flags   string     `yaml:"flags"`
	Length  int        `yaml:"length"`
	Signed  bool       `yaml:"signed"`
	Skipped int        `yaml:"skipped,omitempty"`
	Frames  []frameDoc `yaml:"frames"`
}

func describe(fs *frameset.FrameSet) (frameSetDoc, error) {
	typ, err := fs.Type()
	if err != nil {
		return frameSetDoc{}, err
	}
	flags, err := fs.Flags()
	if err != nil {
		return frameSetDoc{}, err
	}
	frames, err := fs.Frames()
	if err != nil {
		return frameSetDoc{}, err
	}

	doc := frameSetDoc{
		Type:    frameset.TypeName(typ),
		Flags:   fmt.Sprintf("0x%04x", flags),
		Length:  fs.Len(),
		Signed:  fs.Signature() != nil,
		Skipped: fs.Skipped(),
		Frames:  make([]frameDoc, 0, len(frames)),
	}
	for _, f := range frames {
		doc.Frames = append(doc.Frames, frameDoc{
			Type:  f.Type(),
			Name:  frame.TagName(f.Type()),
			Len:   f.Len(),
			Value: f.String(),
		})
	}
	return doc, nil
}

func decodeInput(data []byte, isHex bool) ([]byte, error) {
	if !isHex {
		return data, nil
	}
	text := strings.Join(strings.Fields(string(data)), "")
	text = strings.TrimPrefix(text, "0x")
	out, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return out, nil
}

// runDecode parses data and writes one YAML document per FrameSet.
func runDecode(parser *frameset.Parser, source string, data []byte, isHex bool, w io.Writer) error {
	pkt, err := decodeInput(data, isHex)
	if err != nil {
		return err
	}
	sets, err := parser.ParseAll(source, pkt)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, fs := range sets {
		doc, err := describe(fs)
		if err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
		fs.Release()
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}
