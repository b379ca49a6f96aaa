// Command import publishes registrations from a CSV file onto the
// registrations topic, one RegistrationRequested event per row.
//
// Columns: animal_type_id, quantity, is_collective, buyer_name, note.
// The first row is treated as a header when its quantity column is not a
// number.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fekuna/qurban-engine/config"
	"github.com/fekuna/qurban-engine/internal/animal/dto"
	"github.com/fekuna/qurban-engine/internal/animal/listener"
	"github.com/fekuna/qurban-engine/pkg/broker"
	"github.com/fekuna/qurban-engine/pkg/logger"
)

// Publisher is satisfied by *broker.KafkaProducer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

func main() {
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	file := flag.String("file", "", "CSV file with registrations (default stdin)")
	dryRun := flag.Bool("dry-run", false, "parse and print events without publishing")
	flag.Parse()

	appLogger := logger.NewZapLogger(&logger.ZapLoggerConfig{
		IsDevelopment: true,
		Encoding:      "console",
		Level:         cfg.Logger.Level,
	})
	defer appLogger.Sync()

	in := io.Reader(os.Stdin)
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			appLogger.Fatal("Could not open input", zap.String("file", *file), zap.Error(err))
		}
		defer f.Close()
		in = f
	}

	rows, err := ParseRegistrations(in)
	if err != nil {
		appLogger.Fatal("Could not parse registrations", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *dryRun {
		enc := json.NewEncoder(os.Stdout)
		for _, evt := range BuildEvents(rows, time.Now()) {
			_ = enc.Encode(evt)
		}
		return
	}

	producer := broker.NewProducer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})
	defer producer.Close()

	n, err := Publish(ctx, producer, BuildEvents(rows, time.Now()))
	if err != nil {
		appLogger.Fatal("Publishing stopped", zap.Int("published", n), zap.Error(err))
	}
	appLogger.Info("Registrations published", zap.Int("count", n), zap.String("topic", cfg.Kafka.Topic))
}

// ParseRegistrations reads registration rows from CSV.
func ParseRegistrations(r io.Reader) ([]dto.RegisterInput, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []dto.RegisterInput
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: need at least animal_type_id and quantity", line)
		}
		qty, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: quantity %q: %w", line, rec[1], err)
		}
		in := dto.RegisterInput{
			AnimalTypeID: strings.TrimSpace(rec[0]),
			Quantity:     qty,
		}
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			if in.IsCollective, err = strconv.ParseBool(strings.TrimSpace(rec[2])); err != nil {
				return nil, fmt.Errorf("line %d: is_collective %q: %w", line, rec[2], err)
			}
		}
		if len(rec) > 3 {
			in.Metadata.BuyerName = strings.TrimSpace(rec[3])
		}
		if len(rec) > 4 {
			in.Metadata.Note = strings.TrimSpace(rec[4])
		}
		out = append(out, in)
	}
	return out, nil
}

func BuildEvents(rows []dto.RegisterInput, now time.Time) []listener.RegistrationRequested {
	out := make([]listener.RegistrationRequested, len(rows))
	for i, row := range rows {
		out[i] = listener.RegistrationRequested{
			EventID:   uuid.NewString(),
			EventType: listener.EventTypeRegistrationRequested,
			Payload:   row,
			Timestamp: now,
		}
	}
	return out
}

// Publish sends events in order keyed by animal type, so one type's
// registrations land on one partition and are allocated in file order.
func Publish(ctx context.Context, p Publisher, events []listener.RegistrationRequested) (int, error) {
	for i, evt := range events {
		b, err := json.Marshal(evt)
		if err != nil {
			return i, err
		}
		if err := p.Publish(ctx, []byte(evt.Payload.AnimalTypeID), b); err != nil {
			return i, fmt.Errorf("publish event %s: %w", evt.EventID, err)
		}
	}
	return len(events), nil
}
