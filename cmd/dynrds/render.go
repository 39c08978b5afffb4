package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bartgrantham/dynrds/internal/rds"
	"github.com/bartgrantham/dynrds/internal/style"
	"github.com/bartgrantham/dynrds/internal/values"
)

var renderCmd = &cobra.Command{
	Use:   "render [KEY=VALUE...]",
	Short: "render the configured PS and RT styles",
	Long: `Renders the styles against the given field values and prints the PS
fragments and RT, for trying out a style without a transmitter.`,
	Example: `  dynrds render T="Silent Night" A="Bing Crosby" N=3 C=12 L=185`,
	Args:    cobra.ArbitraryArgs,
	RunE:    runRender,
}

func init() {
	renderCmd.Flags().String("ps-style", "", "PS style, overrides the config")
	renderCmd.Flags().String("rt-style", "", "RT style, overrides the config")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if s, _ := cmd.Flags().GetString("ps-style"); s != "" {
		cfg.PS.Style = s
	}
	if s, _ := cmd.Flags().GetString("rt-style"); s != "" {
		cfg.RT.Style = s
	}

	v := values.New()
	for _, a := range args {
		k, val, ok := strings.Cut(a, "=")
		if !ok || len(k) != 1 || !values.IsKey(k[0]) {
			return fmt.Errorf("bad value %q, want one of %s as KEY=VALUE", a, values.Keys)
		}
		if k[0] == values.Length {
			v.SetLength(val)
		} else {
			v.Set(k[0], val)
		}
	}

	ps := rds.NewPS(2, cfg.PSDelay())
	ps.SetData(style.Render(cfg.PS.Style, v, rds.PSFragmentSize))
	rt := rds.NewRT(cfg.RT.Size, cfg.RTDelay())
	rt.SetData(style.Render(cfg.RT.Style, v, cfg.RT.Size))

	out := cmd.OutOrStdout()
	for i, f := range ps.Fragments() {
		fmt.Fprintf(out, "PS %d %q\n", i, f)
	}
	for i, f := range rt.Fragments() {
		fmt.Fprintf(out, "RT %d %q\n", i, f)
	}
	return nil
}
