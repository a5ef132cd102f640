package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// Mock SMS pool API for local development. Numbers are provisioned
// instantly and an SMS with a random six digit code "arrives" a few
// seconds after purchase.

type mockOrder struct {
	CreatedAt time.Time
	Cancelled bool
}

var (
	mu     sync.Mutex
	orders = map[string]*mockOrder{}
)

const smsDelay = 8 * time.Second

func main() {
	port := ":8082"

	http.HandleFunc("/purchase/sms", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		orderID := fmt.Sprintf("mock_%d", time.Now().UnixNano())
		mu.Lock()
		orders[orderID] = &mockOrder{CreatedAt: time.Now()}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  1,
			"order_id": orderID,
			"number":   fmt.Sprintf("1555%07d", rand.Intn(10000000)),
			"cost":     "0.25",
		})

		log.Printf("Provisioned mock number for order %s", orderID)
	})

	http.HandleFunc("/sms/check", func(w http.ResponseWriter, r *http.Request) {
		orderID := r.URL.Query().Get("orderid")

		mu.Lock()
		ord, ok := orders[orderID]
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			json.NewEncoder(w).Encode(map[string]interface{}{"status": 6})
			return
		}

		switch {
		case ord.Cancelled:
			json.NewEncoder(w).Encode(map[string]interface{}{"status": 6})
		case time.Since(ord.CreatedAt) >= smsDelay:
			code := 100000 + rand.Intn(900000)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": 2,
				"sms":    fmt.Sprintf("Your verification code is %d", code),
			})
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{"status": 1})
		}
	})

	http.HandleFunc("/sms/cancel", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		orderID := r.FormValue("orderid")

		mu.Lock()
		if ord, ok := orders[orderID]; ok {
			ord.Cancelled = true
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"success": 1})

		log.Printf("Cancelled mock order %s", orderID)
	})

	http.HandleFunc("/request/balance", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"balance": "42.50"})
	})

	log.Printf("Mock SMS provider starting on %s...", port)
	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal(err)
	}
}
