// Command arenactl is a command-line client for the arena ledger API. Write
// commands are signed with the configured key.
//
// Usage:
//
//	arenactl [-config path] [-server url] <command> [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alanyoungcy/arenaledger/internal/config"
	"github.com/alanyoungcy/arenaledger/internal/crypto"
	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/alanyoungcy/arenaledger/internal/server/handler"
)

const usage = `arenactl [-config path] [-server url] <command> [flags]

Commands:
  create       open a market
  bet          stake on an outcome
  resolve      declare the winning outcome
  claim        collect winnings
  market       show a market
  odds         show outcome odds
  preview      quote a payout
  leaderboard  show the top players
  address      print the signing address
  encrypt-key  write an encrypted key file
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "arenactl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("arenactl", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := global.String("config", "", "path to configuration file")
	serverURL := global.String("server", "", "API base URL (overrides client.server_url)")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *serverURL != "" {
		cfg.Client.ServerURL = *serverURL
	}

	keyCfg := crypto.KeyConfig{
		RawPrivateKey:    cfg.Client.PrivateKey,
		EncryptedKeyPath: cfg.Client.EncryptedKeyPath,
		KeyPassword:      cfg.Client.KeyPassword,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, rest := global.Arg(0), global.Args()[1:]
	if cmd == "encrypt-key" {
		return encryptKey(rest, cfg.Client)
	}
	// A key file records its address, so no password is needed to show it.
	if cmd == "address" && keyCfg.RawPrivateKey == "" && keyCfg.EncryptedKeyPath != "" {
		addr, err := crypto.KeyFileAddress(keyCfg.EncryptedKeyPath)
		if err != nil {
			return err
		}
		fmt.Println(addr.Hex())
		return nil
	}

	var signer *crypto.Signer
	if keyCfg.RawPrivateKey != "" || keyCfg.EncryptedKeyPath != "" {
		if signer, err = crypto.LoadSigner(keyCfg); err != nil {
			return fmt.Errorf("load key: %w", err)
		}
	}
	c := newAPIClient(cfg.Client.ServerURL, signer, os.Stdout)

	switch cmd {
	case "create":
		return createMarket(ctx, c, rest)
	case "bet":
		return placeBet(ctx, c, rest)
	case "resolve":
		return resolveMarket(ctx, c, rest)
	case "claim":
		return claim(ctx, c, rest)
	case "market":
		return showMarket(ctx, c, rest, "")
	case "odds":
		return showMarket(ctx, c, rest, "/odds")
	case "preview":
		return preview(ctx, c, rest)
	case "leaderboard":
		return showLeaderboard(ctx, c, rest)
	case "address":
		if signer == nil {
			return errors.New("no signing key configured")
		}
		fmt.Println(signer.Address().Hex())
		return nil
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func createMarket(ctx context.Context, c *apiClient, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	question := fs.String("question", "", "market question")
	rules := fs.String("rules", "", "resolution rules")
	image := fs.String("image", "", "image reference")
	category := fs.String("category", "other", "category")
	outcomes := fs.String("outcomes", "Yes,No", "comma-separated outcome labels")
	start := fs.String("start", "", "start time (RFC 3339); empty launches now")
	end := fs.String("end", "", "end time (RFC 3339)")
	duration := fs.Duration("duration", 0, "betting window from start, instead of -end")
	private := fs.Bool("private", false, "require an access code to bet")
	accessCode := fs.String("access-code", "", "access code of a private market")
	mode := fs.String("resolution", "manual", "resolution mode (manual or oracle_assisted)")
	liquidity := fs.String("liquidity", "0", "initial liquidity in native units")
	if err := fs.Parse(args); err != nil {
		return err
	}

	body := handler.CreateMarketBody{
		Question:   *question,
		Rules:      *rules,
		ImageRef:   *image,
		Category:   *category,
		IsPrivate:  *private,
		AccessCode: *accessCode,
	}
	for _, o := range strings.Split(*outcomes, ",") {
		body.Outcomes = append(body.Outcomes, strings.TrimSpace(o))
	}

	rm, ok := domain.ParseResolutionMode(*mode)
	if !ok {
		return fmt.Errorf("unknown resolution mode %q", *mode)
	}
	body.ResolutionMode = rm

	var err error
	if body.InitialLiquidity, err = domain.ParseNative(*liquidity); err != nil {
		return err
	}

	startAt := time.Now().UTC()
	if *start == "" {
		body.LaunchNow = true
	} else {
		if startAt, err = time.Parse(time.RFC3339, *start); err != nil {
			return fmt.Errorf("invalid -start: %w", err)
		}
		body.StartTime = startAt
	}
	switch {
	case *end != "":
		if body.EndTime, err = time.Parse(time.RFC3339, *end); err != nil {
			return fmt.Errorf("invalid -end: %w", err)
		}
	case *duration > 0:
		body.EndTime = startAt.Add(*duration)
	default:
		return errors.New("one of -end or -duration is required")
	}

	return c.post(ctx, "/api/markets", body)
}

func placeBet(ctx context.Context, c *apiClient, args []string) error {
	fs := flag.NewFlagSet("bet", flag.ContinueOnError)
	market := fs.Uint64("market", 0, "market id")
	outcome := fs.Int("outcome", 0, "outcome index")
	amount := fs.String("amount", "", "stake in native units")
	accessCode := fs.String("access-code", "", "access code of a private market")
	if err := fs.Parse(args); err != nil {
		return err
	}
	amt, err := domain.ParseNative(*amount)
	if err != nil {
		return err
	}
	return c.post(ctx, fmt.Sprintf("/api/markets/%d/bets", *market), handler.PlaceBetBody{
		Outcome:    *outcome,
		Amount:     amt,
		AccessCode: *accessCode,
	})
}

func resolveMarket(ctx context.Context, c *apiClient, args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	market := fs.Uint64("market", 0, "market id")
	winner := fs.Int("winner", -1, "winning outcome index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *winner < 0 {
		return errors.New("-winner is required")
	}
	return c.post(ctx, fmt.Sprintf("/api/markets/%d/resolve", *market), handler.ResolveBody{WinningOutcome: *winner})
}

func claim(ctx context.Context, c *apiClient, args []string) error {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	market := fs.Uint64("market", 0, "market id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.post(ctx, fmt.Sprintf("/api/markets/%d/claim", *market), struct{}{})
}

func showMarket(ctx context.Context, c *apiClient, args []string, suffix string) error {
	fs := flag.NewFlagSet("market", flag.ContinueOnError)
	market := fs.Uint64("market", 0, "market id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.get(ctx, fmt.Sprintf("/api/markets/%d%s", *market, suffix))
}

func preview(ctx context.Context, c *apiClient, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	market := fs.Uint64("market", 0, "market id")
	outcome := fs.Int("outcome", 0, "outcome index")
	amount := fs.String("amount", "", "stake in native units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	amt, err := domain.ParseNative(*amount)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("outcome", strconv.Itoa(*outcome))
	q.Set("amount", amt.String())
	return c.get(ctx, fmt.Sprintf("/api/markets/%d/preview?%s", *market, q.Encode()))
}

func showLeaderboard(ctx context.Context, c *apiClient, args []string) error {
	fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "number of players")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.get(ctx, fmt.Sprintf("/api/leaderboard?limit=%d", *limit))
}

func encryptKey(args []string, cc config.ClientConfig) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	out := fs.String("out", "arena-key.json", "output path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cc.PrivateKey == "" || cc.KeyPassword == "" {
		return errors.New("ARENA_CLIENT_PRIVATE_KEY and ARENA_CLIENT_KEY_PASSWORD must be set")
	}
	if err := crypto.EncryptKeyFile(*out, cc.PrivateKey, cc.KeyPassword); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *out)
	return nil
}
