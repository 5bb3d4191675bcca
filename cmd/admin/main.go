package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"seka-server/internal/config"
	"seka-server/internal/jwt"
	"seka-server/pkg/ledger"
)

var command = flag.String("c", "balance", "specifies the command (balance, credit, token)")
var player = flag.Int64("player", 0, "the player id")
var amount = flag.Int("amount", 0, "the amount to credit")
var rows = flag.Int("rows", 10, "the number of transactions to show")
var yes = flag.Bool("y", false, "do not ask for confirmation")

func main() {
	flag.Parse()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		pterm.DisableStyling()
	}

	cfg := config.Instance()
	ctx := context.Background()

	playerID := *player
	if playerID == 0 && interactive {
		playerID = getPlayerID()
	}

	if playerID <= 0 {
		logrus.Fatal("missing -player")
	}

	switch *command {
	case "balance":
		l := openLedger(cfg)
		defer l.Close()
		printAccount(ctx, l, playerID)
	case "credit":
		l := openLedger(cfg)
		defer l.Close()

		if *amount <= 0 {
			logrus.Fatal("-amount must be positive")
		}

		if !*yes && (!interactive || !confirm(fmt.Sprintf("Credit %d to player %d", *amount, playerID))) {
			pterm.Warning.Println("nothing was credited")
			os.Exit(1)
		}

		if _, err := l.EnsureAccount(ctx, playerID); err != nil {
			logrus.WithError(err).Fatal("could not open account")
		}

		if err := l.Credit(ctx, playerID, *amount, "admin:"+uuid.NewString(), "admin credit"); err != nil {
			logrus.WithError(err).Fatal("could not credit player")
		}

		pterm.Success.Printfln("Credited %d to player %d", *amount, playerID)
		printAccount(ctx, l, playerID)
	case "token":
		if err := jwt.LoadKeys(); err != nil {
			logrus.WithError(err).Fatal("could not load keys")
		}

		token, err := jwt.Sign(playerID)
		if err != nil {
			logrus.WithError(err).Fatal("could not sign token")
		}

		fmt.Println(token)
	default:
		logrus.Fatalf("unknown command: %s", *command)
	}
}

func openLedger(cfg config.Config) *ledger.SQL {
	l, err := ledger.Open(cfg.LedgerDriver, cfg.LedgerDSN, cfg.StartingBalance)
	if err != nil {
		logrus.WithError(err).Fatal("could not open ledger")
	}

	return l
}

func printAccount(ctx context.Context, l *ledger.SQL, playerID int64) {
	balance, err := l.BalanceOf(ctx, playerID)
	if err != nil {
		logrus.WithError(err).Fatal("could not read balance")
	}

	pterm.Info.Printfln("Player %d has a balance of %d", playerID, balance)

	entries, err := l.History(ctx, playerID, *rows)
	if err != nil {
		logrus.WithError(err).Fatal("could not read transactions")
	}

	data := pterm.TableData{{"Created", "Reference", "Amount", "Balance", "Note"}}
	for _, e := range entries {
		data = append(data, []string{
			e.Created.Format("2006-01-02 15:04:05"),
			e.Reference,
			strconv.Itoa(e.Amount),
			strconv.Itoa(e.Balance),
			e.Note,
		})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		logrus.WithError(err).Fatal("could not render transactions")
	}
}

func getPlayerID() int64 {
	for {
		str, err := getInput("Player ID")
		if err != nil {
			logrus.WithError(err).Fatal("could not get answer")
		}

		if str == "" {
			return 0
		}

		id, err := strconv.ParseInt(str, 10, 64)
		if err != nil || id <= 0 {
			_, _ = fmt.Fprintln(os.Stderr, "player id must be a positive number")
			continue
		}

		return id
	}
}

func confirm(question string) bool {
	answer, err := getInput(question + " (Y/n)")
	if err != nil {
		logrus.WithError(err).Fatal("could not get answer")
	}

	return answer == "" || strings.ToLower(answer)[0] == 'y'
}

func getInput(question string) (string, error) {
	fmt.Printf("%s: ", question)
	reader := bufio.NewReader(os.Stdin)
	str, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(str, "\r\n"), nil
}
