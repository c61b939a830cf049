// Dev helper: hits a running savings-engine for a quote and a gas estimate.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"
)

var (
	server string
	from   string
	to     string
	amount string
)

func main() {
	flag.StringVar(&server, "server", "http://localhost:8080", "engine base URL")
	flag.StringVar(&from, "from", "ETH", "input token symbol")
	flag.StringVar(&to, "to", "USDC", "output token symbol")
	flag.StringVar(&amount, "amount", "1.0", "input amount")
	flag.Parse()

	client := &http.Client{Timeout: 30 * time.Second}

	query := url.Values{}
	query.Set("from", from)
	query.Set("to", to)
	query.Set("amount", amount)

	dump(client, server+"/quote?"+query.Encode())
	dump(client, server+"/gas?gas_limit=250000&category=standard")
}

func dump(client *http.Client, target string) {
	resp, err := client.Get(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var body interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Fprintf(os.Stderr, "bad response from %s: %v\n", target, err)
		os.Exit(1)
	}
	pretty, _ := json.MarshalIndent(body, "", "  ")
	fmt.Printf("%s (%d)\n%s\n", target, resp.StatusCode, pretty)
}
