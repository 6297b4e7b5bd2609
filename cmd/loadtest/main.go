// loadtest fires concurrent bookings at a running server and checks that
// the event never admits more seats than its capacity.
//
//	loadtest --addr http://localhost:8080 --secret $JWT_SECRET --users 500 --capacity 50
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/eventio/backend/internal/auth"
	"github.com/eventio/backend/internal/bookings"
	"github.com/eventio/backend/internal/models"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	addr      string
	secret    string
	users     int
	capacity  int
	attendees int
	timeout   time.Duration
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("loadtest", pflag.ContinueOnError)
	flagSet.StringVar(&opts.addr, "addr", "http://localhost:8080", "base URL of the booking server")
	flagSet.StringVar(&opts.secret, "secret", os.Getenv("JWT_SECRET"), "JWT secret the server validates tokens with")
	flagSet.IntVar(&opts.users, "users", 200, "number of concurrent booking callers")
	flagSet.IntVar(&opts.capacity, "capacity", 20, "capacity of the event under test")
	flagSet.IntVar(&opts.attendees, "attendees", 1, "attendees per booking")
	flagSet.DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-request timeout")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.secret == "" {
		return errors.New("--secret (or JWT_SECRET) is required")
	}
	if opts.users < 1 || opts.capacity < 1 || opts.attendees < 1 {
		return errors.New("--users, --capacity and --attendees must be positive")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	lt := &loadTest{
		opts:   opts,
		jwt:    auth.NewJWTService(opts.secret, 1),
		client: &http.Client{Timeout: opts.timeout},
		logger: logger,
	}
	return lt.run(context.Background())
}

type loadTest struct {
	opts   options
	jwt    *auth.JWTService
	client *http.Client
	logger *zap.Logger
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (lt *loadTest) run(ctx context.Context) error {
	organizer := models.Caller{ID: uuid.New(), Name: "loadtest organizer", Role: models.RoleUser}
	eventID, err := lt.createEvent(ctx, organizer)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	lt.logger.Info("event created", zap.String("event_id", eventID.String()), zap.Int("capacity", lt.opts.capacity))

	var (
		wg         sync.WaitGroup
		admitted   int64
		full       int64
		unexpected int64
		start      = make(chan struct{})
	)
	for i := 0; i < lt.opts.users; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			caller := models.Caller{ID: uuid.New(), Role: models.RoleUser}
			<-start
			status, env, err := lt.do(ctx, caller, http.MethodPost, "/bookings", map[string]any{
				"event_id":  eventID,
				"attendees": lt.opts.attendees,
			})
			switch {
			case err != nil:
				lt.logger.Warn("request failed", zap.Error(err))
				atomic.AddInt64(&unexpected, 1)
			case status == http.StatusCreated:
				atomic.AddInt64(&admitted, 1)
			case status == http.StatusConflict && env.Error == bookings.ErrCapacityExceeded.Error():
				atomic.AddInt64(&full, 1)
			default:
				lt.logger.Warn("unexpected response", zap.Int("status", status), zap.String("error", env.Error))
				atomic.AddInt64(&unexpected, 1)
			}
		}()
	}
	began := time.Now()
	close(start)
	wg.Wait()
	lt.logger.Info("bookings finished",
		zap.Duration("elapsed", time.Since(began)),
		zap.Int64("admitted", admitted),
		zap.Int64("capacity_rejected", full),
		zap.Int64("unexpected", unexpected),
	)

	avail, err := lt.availability(ctx, eventID)
	if err != nil {
		return fmt.Errorf("read availability: %w", err)
	}

	wantAdmitted := int64(lt.opts.capacity / lt.opts.attendees)
	if wantAdmitted > int64(lt.opts.users) {
		wantAdmitted = int64(lt.opts.users)
	}
	var problems []string
	if avail.TotalAttendees > lt.opts.capacity {
		problems = append(problems, fmt.Sprintf("overbooked: %d seats taken, capacity %d", avail.TotalAttendees, lt.opts.capacity))
	}
	if avail.TotalAttendees != int(admitted)*lt.opts.attendees {
		problems = append(problems, fmt.Sprintf("ledger shows %d seats, clients saw %d admitted", avail.TotalAttendees, int(admitted)*lt.opts.attendees))
	}
	if unexpected > 0 {
		problems = append(problems, fmt.Sprintf("%d unexpected responses", unexpected))
	} else if admitted != wantAdmitted || admitted+full != int64(lt.opts.users) {
		problems = append(problems, fmt.Sprintf("split %d admitted / %d rejected, want %d / %d", admitted, full, wantAdmitted, int64(lt.opts.users)-wantAdmitted))
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	lt.logger.Info("capacity held", zap.Int("seats", avail.TotalAttendees), zap.Int("capacity", lt.opts.capacity))
	return nil
}

func (lt *loadTest) createEvent(ctx context.Context, organizer models.Caller) (uuid.UUID, error) {
	status, env, err := lt.do(ctx, organizer, http.MethodPost, "/events", map[string]any{
		"title":       "Load test " + time.Now().UTC().Format(time.RFC3339),
		"description": "Concurrent booking load test",
		"date":        time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"location":    "loadtest",
		"capacity":    lt.opts.capacity,
	})
	if err != nil {
		return uuid.Nil, err
	}
	if status != http.StatusCreated {
		return uuid.Nil, fmt.Errorf("status %d: %s", status, env.Error)
	}
	var ev models.Event
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return uuid.Nil, fmt.Errorf("decode event: %w", err)
	}
	return ev.ID, nil
}

func (lt *loadTest) availability(ctx context.Context, eventID uuid.UUID) (*bookings.Availability, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lt.opts.addr+"/events/"+eventID.String()+"/bookings/count", nil)
	if err != nil {
		return nil, err
	}
	status, env, err := lt.send(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", status, env.Error)
	}
	var a bookings.Availability
	if err := json.Unmarshal(env.Data, &a); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}
	return &a, nil
}

func (lt *loadTest) do(ctx context.Context, caller models.Caller, method, path string, body any) (int, envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, envelope{}, err
	}
	req, err := http.NewRequestWithContext(ctx, method, lt.opts.addr+path, bytes.NewReader(raw))
	if err != nil {
		return 0, envelope{}, err
	}
	token, err := lt.jwt.Generate(caller)
	if err != nil {
		return 0, envelope{}, fmt.Errorf("mint token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return lt.send(req)
}

func (lt *loadTest) send(req *http.Request) (int, envelope, error) {
	resp, err := lt.client.Do(req)
	if err != nil {
		return 0, envelope{}, err
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return resp.StatusCode, envelope{}, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, env, nil
}
