package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/vietddude/purchasekit/internal/core/domain"
	"github.com/vietddude/purchasekit/internal/infra/appstore"
	"github.com/vietddude/purchasekit/internal/infra/orderapi"
	"github.com/vietddude/purchasekit/internal/infra/validation"
	"github.com/vietddude/purchasekit/internal/order"
	"github.com/vietddude/purchasekit/internal/recovery"
	"github.com/vietddude/purchasekit/internal/retry"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	ORDER_API_URL := os.Getenv("ORDER_API_URL")
	VALIDATOR_URL := os.Getenv("VALIDATOR_URL")
	if ORDER_API_URL == "" {
		log.Fatalf("ORDER_API_URL is not set")
	}
	if VALIDATOR_URL == "" {
		log.Fatalf("VALIDATOR_URL is not set")
	}

	ctx := context.Background()

	// 1. Create a simulated store with a small catalog
	store := appstore.NewSimAdapter([]domain.Product{
		{ID: "com.example.gold", Title: "Gold Pack", Price: "4.99", Currency: "USD"},
		{ID: "com.example.silver", Title: "Silver Pack", Price: "1.99", Currency: "USD"},
	})

	// 2. Setup retry manager with exponential backoff
	retries := retry.NewManager(retry.DefaultConfig())

	// 3. Wire the order service and validator against live endpoints
	orders := order.NewService(orderapi.NewClient(orderapi.Config{URL: ORDER_API_URL}), retries, nil)
	validator := validation.NewHTTPValidator(validation.Config{URL: VALIDATOR_URL})

	// 4. Create the recovery manager
	rec := recovery.NewManager(recovery.DefaultConfig(), store, orders, validator, retries, nil, nil)

	fmt.Println("=== Testing Purchase Pipeline ===")

	// 5. Make a few purchases and drive each through validate -> finish
	for i := 0; i < 3; i++ {
		outcome, err := store.Purchase(ctx, domain.Product{ID: "com.example.gold"})
		if err != nil {
			log.Printf("Purchase %d failed: %v", i+1, err)
			continue
		}

		switch v := outcome.(type) {
		case domain.PurchaseSuccess:
			fmt.Printf("Purchase %d: txn = %s\n", i+1, v.Txn.ID)
			if err := rec.ProcessTransaction(ctx, v.Txn); err != nil {
				log.Printf("Process %s failed: %v", v.Txn.ID, err)
			}
		case domain.PurchaseCancelled:
			fmt.Printf("Purchase %d: cancelled by user\n", i+1)
		case domain.PurchasePending:
			fmt.Printf("Purchase %d: pending approval (txn %s)\n", i+1, v.Txn.ID)
		case domain.PurchaseFailed:
			fmt.Printf("Purchase %d: failed: %v\n", i+1, v.Err)
		}

		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println()

	// 6. Run a sweep over whatever is still pending
	stats, err := rec.Sweep(ctx)
	if err != nil {
		log.Printf("Sweep failed: %v", err)
	}

	fmt.Println("=== Sweep Statistics ===")
	fmt.Printf("  Total:       %d\n", stats.TotalTransactions)
	fmt.Printf("  Recovered:   %d\n", stats.RecoveredTransactions)
	fmt.Printf("  Failed:      %d\n", stats.FailedTransactions)
	fmt.Printf("  In progress: %d\n", stats.InProgressTransactions)
	fmt.Printf("  Duration:    %v\n", stats.FinishedAt.Sub(stats.StartedAt).Round(time.Millisecond))

	// 7. Show the retry ledger
	rstats := retries.Statistics()
	fmt.Printf("Retry ledger: %d active, %d exhausted, %d attempts total\n",
		rstats.ActiveOperations, rstats.ExhaustedOperations, rstats.TotalAttempts)
}
