package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nathoo/talecore/cli"
	"github.com/nathoo/talecore/tui"
)

const defaultGameDir = "games/mist_harbor"

var rootCmd = &cobra.Command{
	Use:           "talecore",
	Short:         "Talecore runs rule-checked, model-narrated text games",
	Long:          `Talecore loads a game directory, asks a language model to narrate each turn and applies only the state changes the game's rules allow.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a game (default command)",
	RunE:  runPlay,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, playCmd} {
		c.Flags().String("game", defaultGameDir, "Game directory (game.yaml or game.lua)")
		c.Flags().String("replay", "", "Play inputs from a file before handing over control")
		c.Flags().Bool("plain", false, "Use the line-based interface even on a terminal")
		c.Flags().Bool("trace", false, "Show raw model output and applied updates")
	}
	rootCmd.AddCommand(playCmd)
	rootCmd.RunE = runPlay
}

func runPlay(cmd *cobra.Command, args []string) error {
	gameDir, _ := cmd.Flags().GetString("game")
	if !cmd.Flags().Changed("game") && len(args) > 0 {
		gameDir = args[0]
	}
	replayPath, _ := cmd.Flags().GetString("replay")
	plain, _ := cmd.Flags().GetBool("plain")
	trace, _ := cmd.Flags().GetBool("trace")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := !plain && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))

	a, err := newApp(ctx, gameDir, !interactive)
	if err != nil {
		return err
	}
	defer a.Close()

	if !interactive {
		return runPlain(ctx, a, replayPath, trace)
	}
	return tui.Run(ctx, a.engine, a.saves,
		tui.WithReplay(replayPath),
		tui.WithTrace(trace),
	)
}

func runPlain(ctx context.Context, a *app, replayPath string, trace bool) error {
	c := cli.New(a.engine, a.saves)
	c.Trace = trace
	c.Replay = replayPath
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
