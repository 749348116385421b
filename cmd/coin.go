package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhubert/gameforge/internal/coin"
)

var coinCmd = &cobra.Command{
	Use:   "coin",
	Short: "Manage mock game coins",
	Long:  `Create and list the mocked ERC-20 game coins kept in the local ledger.`,
}

var (
	coinCreator     string
	coinTitle       string
	coinName        string
	coinSymbol      string
	coinDescription string
	coinImage       string
)

var coinCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a game coin",
	Long: `Create a game coin and mint the initial supply to the creator. With --title
the name, symbol, description and image are pre-filled from the game title;
the other flags override the pre-filled values.`,
	RunE: runCoinCreate,
}

var coinListCmd = &cobra.Command{
	Use:   "list",
	Short: "List game coins",
	RunE:  runCoinList,
}

var coinCaller string

var coinTemplateCmd = &cobra.Command{
	Use:   "template [address]",
	Short: "Show or change the token template",
	Long: `Without an argument, print the template address new game tokens are derived
from. With an address, replace it; only the factory owner (--caller) may do so.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCoinTemplate,
}

func init() {
	f := coinCreateCmd.Flags()
	f.StringVar(&coinCreator, "creator", "", "creator wallet address (required)")
	f.StringVar(&coinTitle, "title", "", "game title used to pre-fill the coin")
	f.StringVar(&coinName, "name", "", "coin name")
	f.StringVar(&coinSymbol, "symbol", "", "coin symbol, 3 to 5 characters")
	f.StringVar(&coinDescription, "description", "", "coin description")
	f.StringVar(&coinImage, "image", "", "image URI")
	_ = coinCreateCmd.MarkFlagRequired("creator")

	coinListCmd.Flags().StringVar(&coinCreator, "creator", "", "only coins created by this address")

	coinTemplateCmd.Flags().StringVar(&coinCaller, "caller", "", "address making the change (default: configured factory owner)")

	coinCmd.AddCommand(coinCreateCmd, coinListCmd, coinTemplateCmd)
	rootCmd.AddCommand(coinCmd)
}

// draftFromFlags builds the draft for `coin create`.
func draftFromFlags() coin.Draft {
	var d coin.Draft
	if coinTitle != "" {
		d = coin.DraftFromTitle(coinTitle)
	}
	if coinName != "" {
		d.Name = coinName
	}
	if coinSymbol != "" {
		d.Symbol = coinSymbol
	}
	if coinDescription != "" {
		d.Description = coinDescription
	}
	if coinImage != "" {
		d.ImageURI = coinImage
	}
	if d.ImageURI == "" {
		d.ImageURI = coin.DefaultImageURI
	}
	return d
}

func runCoinCreate(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	if err := e.openCoins(); err != nil {
		return err
	}

	ctx := cmd.Context()
	g, err := e.coins.CreateGameToken(ctx, coinCreator, draftFromFlags())
	if err != nil {
		return fmt.Errorf("creating coin: %w", err)
	}
	bal, err := e.coins.BalanceOf(ctx, g.ID, g.Creator)
	if err != nil {
		return fmt.Errorf("reading balance: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s (%s), game #%d\n", g.Name, g.Symbol, g.ID)
	fmt.Fprintf(out, "  token:   %s\n", g.Token)
	fmt.Fprintf(out, "  creator: %s\n", g.Creator)
	fmt.Fprintf(out, "  balance: %s %s\n", coin.FormatAmount(bal), g.Symbol)
	return nil
}

func runCoinList(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	if err := e.openCoins(); err != nil {
		return err
	}

	ctx := cmd.Context()
	var games []coin.Game
	if coinCreator != "" {
		games, err = e.coins.GamesByCreator(ctx, coinCreator)
	} else {
		games, err = e.coins.Games(ctx)
	}
	if err != nil {
		return fmt.Errorf("listing coins: %w", err)
	}
	printGames(cmd.OutOrStdout(), games, time.Now())
	return nil
}

func printGames(w io.Writer, games []coin.Game, now time.Time) {
	if len(games) == 0 {
		fmt.Fprintln(w, "No game coins.")
		return
	}
	fmt.Fprintf(w, "%-4s  %-6s  %-30s  %-42s  %s\n", "ID", "SYMBOL", "NAME", "TOKEN", "CREATED")
	for _, g := range games {
		fmt.Fprintf(w, "%-4d  %-6s  %-30s  %-42s  %s\n",
			g.ID, g.Symbol, truncate(g.Name, 30), g.Token, formatTime(g.CreatedAt, now))
	}
}

func runCoinTemplate(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	if err := e.openCoins(); err != nil {
		return err
	}

	var template string
	if len(args) == 1 {
		template = args[0]
	}
	return updateTemplate(cmd.Context(), e.coins, cmd.OutOrStdout(), coinCaller, template)
}

// updateTemplate prints the template, changing it first when template is set.
// An empty caller acts as the factory owner.
func updateTemplate(ctx context.Context, f *coin.Factory, w io.Writer, caller, template string) error {
	if template != "" {
		if caller == "" {
			caller = f.Owner()
		}
		if err := f.SetTemplate(ctx, caller, template); err != nil {
			return fmt.Errorf("setting template: %w", err)
		}
	}
	current, err := f.Template(ctx)
	if err != nil {
		return fmt.Errorf("reading template: %w", err)
	}
	fmt.Fprintf(w, "template: %s\n", current)
	return nil
}
