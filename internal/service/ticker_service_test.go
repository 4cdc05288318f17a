package service

import (
	"testing"

	"crypto_terminal/internal/domain"

	"github.com/shopspring/decimal"
)

func TestTickerService_FirstTickHasNoPrevious(t *testing.T) {
	svc := NewTickerService()

	moves := svc.ProcessTickers([]domain.Ticker{
		{Symbol: "btcusdt", Price: decimal.NewFromInt(50000)},
	})

	if len(moves) != 1 {
		t.Fatalf("Expected 1 move, got %d", len(moves))
	}
	if moves[0].Previous != nil {
		t.Errorf("Expected no previous price, got %v", moves[0].Previous)
	}
	if moves[0].Symbol != "BTCUSDT" {
		t.Errorf("Expected normalized symbol, got %s", moves[0].Symbol)
	}
}

func TestTickerService_TracksPrevious(t *testing.T) {
	svc := NewTickerService()

	svc.ProcessTickers([]domain.Ticker{{Symbol: "BTCUSDT", Price: decimal.NewFromInt(9)}})
	moves := svc.ProcessTickers([]domain.Ticker{{Symbol: "BTCUSDT", Price: decimal.NewFromInt(11)}})

	if moves[0].Previous == nil || !moves[0].Previous.Equal(decimal.NewFromInt(9)) {
		t.Errorf("Expected previous 9, got %v", moves[0].Previous)
	}
	if !moves[0].Current.Equal(decimal.NewFromInt(11)) {
		t.Errorf("Expected current 11, got %v", moves[0].Current)
	}

	got, ok := svc.Get("btcusdt")
	if !ok {
		t.Fatal("BTCUSDT should exist")
	}
	if got.PrevPrice == nil || !got.PrevPrice.Equal(decimal.NewFromInt(9)) {
		t.Errorf("Stored ticker should carry previous price, got %v", got.PrevPrice)
	}
}

func TestTickerService_PayloadPreviousWins(t *testing.T) {
	svc := NewTickerService()
	svc.ProcessTickers([]domain.Ticker{{Symbol: "ETHUSDT", Price: decimal.NewFromInt(100)}})

	prev := decimal.NewFromInt(90)
	moves := svc.ProcessTickers([]domain.Ticker{{Symbol: "ETHUSDT", Price: decimal.NewFromInt(120), PrevPrice: &prev}})

	if !moves[0].Previous.Equal(prev) {
		t.Errorf("Expected payload previous 90, got %v", moves[0].Previous)
	}
}

func TestTickerService_GetAllSorted(t *testing.T) {
	svc := NewTickerService()
	svc.ProcessTickers([]domain.Ticker{
		{Symbol: "ETHUSDT", Price: decimal.NewFromInt(1)},
		{Symbol: "BTCUSDT", Price: decimal.NewFromInt(2)},
		{Symbol: "", Price: decimal.NewFromInt(3)},
	})

	all := svc.GetAll()
	if len(all) != 2 {
		t.Fatalf("Expected 2 tickers, got %d", len(all))
	}
	if all[0].Symbol != "BTCUSDT" {
		t.Errorf("Expected BTCUSDT first, got %s", all[0].Symbol)
	}
}

func TestTickerService_Favorites(t *testing.T) {
	svc := NewTickerService()
	svc.SetFavorite("ethusdt", true)
	svc.SetFavorite("BTCUSDT", true)
	svc.SetFavorite("BTCUSDT", false)

	favs := svc.Favorites()
	if len(favs) != 1 || favs[0] != "ETHUSDT" {
		t.Errorf("Expected [ETHUSDT], got %v", favs)
	}
}
