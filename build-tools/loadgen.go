//go:build ignore

// Run: go run ./build-tools/loadgen.go -brokers localhost:9092 -topic swap-intents -rps 200 -duration 60s -tokens USDC,USDT,ETH -chains sepolia,amoy

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	mrand "math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
)

// mirrors internal/ingest/kafka.IntentMessage
type IntentMessage struct {
	IdempotencyKey string `json:"idempotency_key"`
	UserAddress    string `json:"user_address"`
	FromToken      string `json:"from_token"`
	ToToken        string `json:"to_token"`
	FromChain      string `json:"from_chain"`
	ToChain        string `json:"to_chain"`
	Amount         string `json:"amount"`
	Recipient      string `json:"recipient,omitempty"`
}

func main() {
	var (
		brokers  = flag.String("brokers", "localhost:9092", "comma-separated list of brokers")
		topic    = flag.String("topic", "swap-intents", "topic name")
		rps      = flag.Int("rps", 200, "intents per second target")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
		tokens   = flag.String("tokens", "USDC,USDT,ETH", "comma-separated token symbols")
		chains   = flag.String("chains", "sepolia,amoy", "comma-separated chain names")
		dupRate  = flag.Float64("dup", 0.01, "share of messages re-sent with the same idempotency key")
	)
	flag.Parse()

	tokenSymbols := splitTrim(*tokens)
	chainNames := splitTrim(*chains)
	if len(tokenSymbols) < 2 || len(chainNames) < 2 {
		fmt.Println("need at least two tokens and two chains")
		os.Exit(1)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(splitTrim(*brokers)...),
		Topic:        *topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchSize:    1000,
		BatchTimeout: 20 * time.Millisecond,
		Async:        true,
		Completion: func(_ []kafka.Message, err error) {
			if err != nil {
				fmt.Printf("produce error: %v\n", err)
			}
		},
	}
	defer func() { _ = w.Close() }()

	fmt.Printf("loadgen → brokers=%s topic=%s rps=%d duration=%s\n", *brokers, *topic, *rps, duration.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	end := time.Now().Add(*duration)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(*rps) / 10.0
	accum := 0.0
	sent := 0

	var last *IntentMessage

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping…")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			accum += perTick
			n := int(math.Floor(accum))
			if n <= 0 {
				continue
			}
			accum -= float64(n)

			msgs := make([]kafka.Message, 0, n)
			for i := 0; i < n; i++ {
				in := randomIntent(tokenSymbols, chainNames)
				if last != nil && mrand.Float64() < *dupRate {
					in = last
				}
				last = in

				val, _ := json.Marshal(in)
				msgs = append(msgs, kafka.Message{Key: []byte(in.IdempotencyKey), Value: val})
			}
			if err := w.WriteMessages(ctx, msgs...); err != nil {
				fmt.Printf("write error: %v\n", err)
				continue
			}
			sent += n
		}
	}

	fmt.Printf("flushing… sent=%d\n", sent)
}

func randomIntent(tokens, chains []string) *IntentMessage {
	from := mrand.Intn(len(tokens))
	to := (from + 1 + mrand.Intn(len(tokens)-1)) % len(tokens)
	src := mrand.Intn(len(chains))
	dst := (src + 1 + mrand.Intn(len(chains)-1)) % len(chains)

	return &IntentMessage{
		IdempotencyKey: randHex(32),
		UserAddress:    "0x" + randHex(40),
		FromToken:      tokens[from],
		ToToken:        tokens[to],
		FromChain:      chains[src],
		ToChain:        chains[dst],
		Amount:         fmt.Sprintf("%.6f", 1+mrand.Float64()*1000),
	}
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func randHex(n int) string {
	b := make([]byte, n/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
