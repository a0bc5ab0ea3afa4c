// Command loadtest signs up a batch of users against a running server, pairs
// them off and has every user send messages to its partner over the relay.
// It reports how long confirmations took.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/relay"
	"github.com/johndosdos/skillxchange/internal/session"
)

type result struct {
	latencies []time.Duration
	failed    int
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	users := flag.Int("users", 10, "number of users, rounded up to an even count")
	messages := flag.Int("messages", 20, "messages each user sends")
	timeout := flag.Duration("timeout", 30*time.Second, "wait for confirmations")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)

	if *users%2 != 0 {
		*users++
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	api := session.NewAPI(*baseURL, &http.Client{Timeout: 10 * time.Second})
	run := time.Now().UnixNano()

	accounts := make([]session.AuthResult, 0, *users)
	for i := range *users {
		acct, err := signup(ctx, api, fmt.Sprintf("load_%d_%d", run, i))
		if err != nil {
			log.Fatalf("signup %d: %v", i, err)
		}
		accounts = append(accounts, acct)
	}
	log.Printf("signed up %d users", len(accounts))

	quiet := slog.New(slog.DiscardHandler)
	sessions := make([]*session.Session, len(accounts))
	for i, acct := range accounts {
		s, err := session.Dial(ctx, *baseURL, acct.User.ID.String(), session.Options{
			Token:  acct.Token,
			Logger: quiet,
		})
		if err != nil {
			log.Fatalf("dial %s: %v", acct.User.Username, err)
		}
		defer s.Close()
		sessions[i] = s
	}
	log.Printf("connected %d sessions", len(sessions))

	var (
		mu  sync.Mutex
		all result
		wg  sync.WaitGroup
	)
	start := time.Now()
	for i, s := range sessions {
		peer := sessions[i^1].Self()
		wg.Go(func() {
			r := exchange(ctx, s, peer, *messages)
			mu.Lock()
			all.latencies = append(all.latencies, r.latencies...)
			all.failed += r.failed
			mu.Unlock()
		})
	}
	wg.Wait()

	report(all, time.Since(start))
}

// signup registers a fresh user and logs straight back in, so both auth
// routes are on the path.
func signup(ctx context.Context, api *session.API, name string) (session.AuthResult, error) {
	email := name + "@loadtest.local"
	password := "loadtest-" + name

	if _, err := api.Register(ctx, model.RegisterRequest{
		Username: name,
		Email:    email,
		Password: password,
	}); err != nil {
		return session.AuthResult{}, err
	}

	return api.Login(ctx, email, password)
}

// exchange sends n messages to peer and waits until each one is confirmed or
// rejected by the server.
func exchange(ctx context.Context, s *session.Session, peer string, n int) result {
	var r result
	sent := make(map[string]time.Time, n)

	if err := s.Open(ctx, peer); err != nil {
		log.Printf("open %s: %v", peer, err)
		r.failed = n
		return r
	}

	for i := range n {
		entry, err := s.Send(ctx, peer, fmt.Sprintf("message %d from %s", i, s.Self()))
		if err != nil {
			r.failed++
			continue
		}
		sent[entry.TempID] = time.Now()
	}

	// updates can be dropped under load, so settle on a tick as well
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()

	for len(sent) > 0 {
		select {
		case <-tick.C:
			r.failed += settle(s.Entries(peer), sent, &r.latencies)
		case <-ctx.Done():
			r.failed += len(sent)
			return r
		case u, ok := <-s.Updates:
			if !ok {
				r.failed += len(sent)
				return r
			}
			if u.Peer != peer {
				continue
			}
			switch u.Event {
			case relay.EventMessageConfirmed, relay.EventMessageError:
			default:
				continue
			}
			r.failed += settle(s.Entries(peer), sent, &r.latencies)
		}
	}

	return r
}

// settle drops every sent message that is no longer pending from sent. It
// records the latency of confirmed ones and returns how many failed, which
// are the ones gone from the timeline.
func settle(entries []session.Entry, sent map[string]time.Time, latencies *[]time.Duration) int {
	byTemp := lo.KeyBy(entries, func(e session.Entry) string { return e.TempID })
	failed := 0
	for id, at := range sent {
		e, ok := byTemp[id]
		switch {
		case !ok:
			failed++
		case e.State == session.Pending:
			continue
		default:
			*latencies = append(*latencies, time.Since(at))
		}
		delete(sent, id)
	}
	return failed
}

func report(r result, elapsed time.Duration) {
	if len(r.latencies) == 0 {
		log.Print("no messages were confirmed")
		log.Printf("failed: %d, elapsed: %s", r.failed, elapsed)
		return
	}

	slices.Sort(r.latencies)
	pct := func(p int) time.Duration {
		return r.latencies[(len(r.latencies)-1)*p/100]
	}
	total := lo.Sum(r.latencies)

	log.Printf("confirmed: %d, failed: %d, elapsed: %s", len(r.latencies), r.failed, elapsed)
	log.Printf("latency avg %s p50 %s p95 %s max %s",
		total/time.Duration(len(r.latencies)), pct(50), pct(95), r.latencies[len(r.latencies)-1])
}
