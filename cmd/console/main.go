package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gitlab.ozon.dev/qwestard/laundry/internal/auth"
	"gitlab.ozon.dev/qwestard/laundry/internal/config"
	"gitlab.ozon.dev/qwestard/laundry/internal/handler"
	"gitlab.ozon.dev/qwestard/laundry/internal/models"
	"gitlab.ozon.dev/qwestard/laundry/internal/pricing"
	"gitlab.ozon.dev/qwestard/laundry/internal/service"
	"gitlab.ozon.dev/qwestard/laundry/internal/session"
	"gitlab.ozon.dev/qwestard/laundry/internal/storage"
)

func main() {
	cfg := config.LoadConfig()

	st, err := storage.New(cfg.SnapshotFile)
	if err != nil {
		log.Fatalf("Error opening store: %v", err)
	}
	pricer, err := pricing.NewRandomPricer(cfg.PriceMin, cfg.PriceMax, cfg.PriceSeed)
	if err != nil {
		log.Fatalf("Error creating pricer: %v", err)
	}

	svc := service.NewLaundryService(st, models.UUIDGenerator{}, pricer)
	authenticator := auth.NewAuthenticator(models.UUIDGenerator{})
	h := handler.New(session.NewController(st), authenticator.SignIn, svc, os.Stdout)

	fmt.Println("Laundry on demand. Pick a role: 'role customer' or 'role provider'. 'help' lists commands.")
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("\n> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		args := handler.SplitArgs(strings.TrimSpace(line))
		if len(args) == 0 {
			continue
		}
		if err := h.Execute(ctx, args[0], args[1:]); err != nil {
			if errors.Is(err, handler.ErrExit) {
				return
			}
			fmt.Printf("Error: %v\n", err)
		}
	}
}
