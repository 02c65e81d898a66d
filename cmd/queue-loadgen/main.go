// Command queue-loadgen floods the queue-commands topic with join and leave
// commands so matchmaking can be exercised under load. With -seed it first
// writes the generated players to the configured Postgres database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/match-lifecycle/internal/config"
	"github.com/match-lifecycle/internal/domain"
	"github.com/match-lifecycle/internal/postgres"
	"github.com/match-lifecycle/internal/rating"
)

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
	"Ace", "Bolt", "Crash", "Dash", "Edge", "Flash", "Glitch", "Haze", "Ion", "Jade",
}

var regions = []domain.Region{
	{State: "Catalonia", City: "Barcelona"},
	{State: "Madrid", City: "Madrid"},
	{State: "Andalusia", City: "Seville"},
}

func getPlayerID(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

// loadPlayer is a generated player; its index decides region, gender and rating
type loadPlayer struct {
	id     string
	region domain.Region
	gender domain.Gender
	rating int
}

func generatePlayers(n int) []loadPlayer {
	out := make([]loadPlayer, n)
	for i := range out {
		gender := domain.GenderMale
		if i%2 == 1 {
			gender = domain.GenderFemale
		}
		out[i] = loadPlayer{
			id:     getPlayerID(i),
			region: regions[i%len(regions)],
			gender: gender,
			rating: 700 + rand.IntN(1200),
		}
	}
	return out
}

func seedPlayers(ctx context.Context, configPath string, players []loadPlayer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	repo, err := postgres.NewRepository(&cfg.Postgres, slog.Default())
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.RunMigrations(ctx); err != nil {
		return err
	}

	now := time.Now()
	availability := domain.Availability{
		time.Wednesday: {domain.PeriodEvening},
		time.Saturday:  {domain.PeriodMorning},
	}
	for _, lp := range players {
		err := repo.UpsertPlayer(ctx, &domain.Player{
			ID:                     lp.id,
			Name:                   lp.id,
			Region:                 lp.region,
			Gender:                 lp.gender,
			SidePreference:         domain.SideBoth,
			Rating:                 lp.rating,
			Category:               rating.Category(lp.rating),
			ProvisionalGamesPlayed: domain.ProvisionalMatches,
			Availability:           availability,
			CreatedAt:              now,
			UpdatedAt:              now,
		})
		if err != nil {
			return fmt.Errorf("seeding %s: %w", lp.id, err)
		}
	}
	return nil
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "queue-commands", "Kafka topic")
	totalPlayers := flag.Int("players", 400, "Total number of players to generate")
	commandsPerSecond := flag.Int("rate", 50, "Commands per second")
	leaveShare := flag.Int("leave-percent", 20, "Share of continuous commands that are leaves")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	initialOnly := flag.Bool("initial-only", false, "Only queue every player once, no continuous traffic")
	seed := flag.Bool("seed", false, "Write the generated players to Postgres first")
	configPath := flag.String("config", "config.yaml", "Server configuration used by -seed")
	flag.Parse()

	if *totalPlayers < 1 || *commandsPerSecond < 1 {
		log.Fatal("players and rate must be positive")
	}
	brokerList := strings.Split(*brokers, ",")
	players := generatePlayers(*totalPlayers)

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Queue command load generator")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Total Players:    %d\n", *totalPlayers)
	fmt.Printf("  Commands/sec:     %d\n", *commandsPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	if *seed {
		fmt.Printf("Seeding %d players into Postgres...\n", *totalPlayers)
		if err := seedPlayers(context.Background(), *configPath, players); err != nil {
			log.Fatalf("Failed to seed players: %v", err)
		}
		fmt.Println("✓ Players seeded")
	}

	// Configure Sarama producer
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 100
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, saramaConfig)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	// Handle producer errors and successes
	var successCount, errorCount atomic.Int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			successCount.Add(1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			errorCount.Add(1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	finish := func(reason string) {
		fmt.Printf("\n\n%s\n", reason)
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", successCount.Load(), errorCount.Load())
	}

	// Send message helper; keyed by player so one player's commands stay ordered
	sendCommand := func(cmd domain.QueueCommand) {
		data, err := json.Marshal(cmd)
		if err != nil {
			log.Printf("Failed to marshal command: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(cmd.PlayerID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	join := func(p loadPlayer) domain.QueueCommand {
		return domain.QueueCommand{Type: domain.QueueCommandJoin, PlayerID: p.id, Gender: p.gender}
	}

	// Queue every player once
	fmt.Printf("Queueing %d players...\n", *totalPlayers)
	for i, p := range players {
		sendCommand(join(p))
		if (i+1)%50 == 0 || i+1 == len(players) {
			progress := float64(i+1) / float64(len(players)) * 100
			fmt.Printf("\r  Progress: %d/%d players (%.1f%%)", i+1, len(players), progress)
		}
	}
	fmt.Printf("\n✓ Queued %d players\n\n", len(players))

	if *initialOnly {
		finish("Initial-only mode: exiting after queueing players")
		return
	}

	fmt.Printf("Starting continuous traffic (%d/sec, %d%% leaves)\n", *commandsPerSecond, *leaveShare)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*commandsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var commandCount int64
	for {
		select {
		case <-sigChan:
			finish("Shutting down...")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				finish("Duration reached, shutting down...")
				return
			}

			// rejoins of players still queued are rejected by the server, which is fine
			p := players[rand.IntN(len(players))]
			cmd := join(p)
			if rand.IntN(100) < *leaveShare {
				cmd = domain.QueueCommand{Type: domain.QueueCommandLeave, PlayerID: p.id}
			}
			sendCommand(cmd)
			commandCount++

		case <-statsTicker.C:
			fmt.Printf("[%s] Commands: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				commandCount,
				successCount.Load(),
				errorCount.Load(),
			)
		}
	}
}
