package main

import (
	"time"

	"github.com/sirupsen/logrus"
	"seka-server/internal/config"
	"seka-server/pkg/ledger"
)

func main() {
	l := waitForDB()
	defer l.Close()

	if err := l.Migrate(); err != nil {
		logrus.WithError(err).Fatal("could not migrate ledger")
	}

	logrus.Info("ledger is up to date")
}

func waitForDB() *ledger.SQL {
	cfg := config.Instance()
	timeout := time.NewTimer(time.Second * 10)
	for {
		select {
		case <-timeout.C:
			logrus.Fatal("could not connect to database")
		default:
			l, err := ledger.Open(cfg.LedgerDriver, cfg.LedgerDSN, cfg.StartingBalance)
			if err == nil {
				return l
			}

			logrus.WithError(err).Debug("database is not ready")
			time.Sleep(time.Millisecond * 500)
		}
	}
}
