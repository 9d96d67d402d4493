// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Autoreply replay tool.
//
// Standalone CLI that runs messages of one thread through the decision
// pipeline synchronously. The dedup ledger still guards, so messages that
// were already processed come back as ignored.
//
// Usage:
//
//	go run ./cmd/replay/ --account <id> --thread <id> --grant <id> [--message <id>]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bcem/autoreply/internal/app"
	"github.com/bcem/autoreply/internal/config"
	"github.com/bcem/autoreply/internal/filter"
	"github.com/bcem/autoreply/internal/models"
)

const threadScanLimit = 50

type replayResult struct {
	MessageID string `json:"message_id"`
	models.ProcessingResult
}

func main() {
	// Structured JSON logging on stderr; results go to stdout.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	accountFlag := flag.String("account", "", "Account ID (required)")
	threadFlag := flag.String("thread", "", "Thread ID (required)")
	grantFlag := flag.String("grant", "", "Mailbox grant ID (required)")
	messageFlag := flag.String("message", "", "Message ID (optional; empty = every customer message in the thread)")
	flag.Parse()

	if *accountFlag == "" || *threadFlag == "" || *grantFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --account, --thread and --grant are required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	messageIDs := []string{*messageFlag}
	if *messageFlag == "" {
		messageIDs, err = customerMessages(ctx, a, *accountFlag, *grantFlag, *threadFlag)
		if err != nil {
			slog.Error("failed to list thread", "thread_id", *threadFlag, "error", err)
			os.Exit(1)
		}
		slog.Info("replaying thread", "thread_id", *threadFlag, "messages", len(messageIDs))
	}

	enc := json.NewEncoder(os.Stdout)
	for _, id := range messageIDs {
		if ctx.Err() != nil {
			break
		}
		ref := models.InboundMessageRef{
			AccountID: *accountFlag,
			ThreadID:  *threadFlag,
			MessageID: id,
			GrantID:   *grantFlag,
		}
		res := a.Pipeline.Process(ctx, ref)
		if err := enc.Encode(replayResult{MessageID: id, ProcessingResult: res}); err != nil {
			slog.Error("failed to write result", "error", err)
		}
	}
}

// customerMessages returns the IDs of thread messages not sent by the
// account's own mailbox, oldest first.
func customerMessages(ctx context.Context, a *app.App, accountID, grantID, threadID string) ([]string, error) {
	acct, err := a.Accounts.Load(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}

	msgs, err := a.Mailbox.ListThread(ctx, grantID, threadID, threadScanLimit)
	if err != nil {
		return nil, err
	}

	own := filter.NormalizeAddress(acct.MailboxAddress)
	var ids []string
	for _, m := range msgs {
		if own != "" && filter.NormalizeAddress(m.From) == own {
			continue
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}
