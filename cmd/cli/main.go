// Command herdsphere is a small operator CLI against a running server.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/herdsphere/herdsphere/internal/security/auth"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "token":
		handleToken(args)
	case "farm":
		handleFarm(args)
	case "stock":
		handleStock(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: herdsphere <command>

Commands:
  token -user <id> [-email <addr>]       mint a development bearer token
  farm create -name <name> [-location]   create a farm
  farm list                              list your farms
  farm join -code <joinCode>             join a farm by code
  farm delete -id <farmId>               delete a farm and everything in it
  stock get -farm <farmId>               show the aggregate counters
  stock history -farm <farmId>           show recent stock snapshots

Environment:
  HERDSPHERE_URL    server base url (default http://localhost:8080)
  HERDSPHERE_TOKEN  bearer token for authenticated commands
  JWT_SECRET        shared secret for the token command`)
}

func baseURL() string {
	if v := os.Getenv("HERDSPHERE_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func handleToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	userID := fs.String("user", "", "user id")
	email := fs.String("email", "", "email")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	fs.Parse(args)

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "token: -user is required")
		os.Exit(1)
	}

	tm := auth.NewTokenManager(os.Getenv("JWT_SECRET"), "herdsphere")
	token, err := tm.GenerateToken(*userID, *email, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func handleFarm(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: herdsphere farm <create|list|join|delete>")
		return
	}
	switch args[0] {
	case "create":
		farmCreate(args[1:])
	case "list":
		farmList()
	case "join":
		farmJoin(args[1:])
	case "delete":
		farmDelete(args[1:])
	default:
		fmt.Printf("unknown farm command: %s\n", args[0])
	}
}

func farmCreate(args []string) {
	fs := flag.NewFlagSet("farm create", flag.ExitOnError)
	name := fs.String("name", "", "farm name")
	location := fs.String("location", "", "farm location")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "farm create: -name is required")
		os.Exit(1)
	}

	var out struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		JoinCode string `json:"joinCode"`
	}
	doJSON(http.MethodPost, "/api/farms", map[string]string{"name": *name, "location": *location}, &out)
	fmt.Printf("created %s (%s)\njoin code: %s\n", out.ID, out.Name, out.JoinCode)
}

func farmList() {
	var farms []struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Owner   string   `json:"owner"`
		Members []string `json:"members"`
	}
	doJSON(http.MethodGet, "/api/farms", nil, &farms)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOWNER\tMEMBERS")
	for _, f := range farms {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", f.ID, f.Name, f.Owner, len(f.Members))
	}
	w.Flush()
}

func farmJoin(args []string) {
	fs := flag.NewFlagSet("farm join", flag.ExitOnError)
	code := fs.String("code", "", "join code")
	fs.Parse(args)

	if *code == "" {
		fmt.Fprintln(os.Stderr, "farm join: -code is required")
		os.Exit(1)
	}

	var out struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	doJSON(http.MethodPost, "/api/farms/join", map[string]string{"joinCode": *code}, &out)
	fmt.Printf("joined %s (%s)\n", out.ID, out.Name)
}

func farmDelete(args []string) {
	fs := flag.NewFlagSet("farm delete", flag.ExitOnError)
	id := fs.String("id", "", "farm id")
	fs.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "farm delete: -id is required")
		os.Exit(1)
	}

	doJSON(http.MethodDelete, "/api/farms/"+*id, nil, nil)
	fmt.Printf("deleted %s\n", *id)
}

func handleStock(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: herdsphere stock <get|history>")
		return
	}
	switch args[0] {
	case "get":
		stockGet(args[1:])
	case "history":
		stockHistory(args[1:])
	default:
		fmt.Printf("unknown stock command: %s\n", args[0])
	}
}

func stockGet(args []string) {
	fs := flag.NewFlagSet("stock get", flag.ExitOnError)
	farmID := fs.String("farm", "", "farm id")
	fs.Parse(args)

	if *farmID == "" {
		fmt.Fprintln(os.Stderr, "stock get: -farm is required")
		os.Exit(1)
	}

	var out struct {
		TotalFeed   float64   `json:"totalFeed"`
		TotalMilk   float64   `json:"totalMilk"`
		LastUpdated time.Time `json:"lastUpdated"`
	}
	doJSON(http.MethodGet, "/api/farms/"+*farmID+"/stock", nil, &out)
	fmt.Printf("feed: %.2f kg\nmilk: %.2f l\nupdated: %s\n", out.TotalFeed, out.TotalMilk, out.LastUpdated.Format(time.RFC3339))
}

func stockHistory(args []string) {
	fs := flag.NewFlagSet("stock history", flag.ExitOnError)
	farmID := fs.String("farm", "", "farm id")
	fs.Parse(args)

	if *farmID == "" {
		fmt.Fprintln(os.Stderr, "stock history: -farm is required")
		os.Exit(1)
	}

	var snaps []struct {
		TotalFeed float64   `json:"totalFeed"`
		TotalMilk float64   `json:"totalMilk"`
		TakenAt   time.Time `json:"takenAt"`
	}
	doJSON(http.MethodGet, "/api/farms/"+*farmID+"/stock/history", nil, &snaps)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TAKEN AT\tFEED\tMILK")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\n", s.TakenAt.Format(time.RFC3339), s.TotalFeed, s.TotalMilk)
	}
	w.Flush()
}

// doJSON performs one authenticated request and decodes the response into
// out when it is non-nil. Any non-2xx response terminates the CLI.
func doJSON(method, path string, body any, out any) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode request: %v\n", err)
			os.Exit(1)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, baseURL()+path, reqBody)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := os.Getenv("HERDSPHERE_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "server returned %s: %s\n", resp.Status, bytes.TrimSpace(msg))
		os.Exit(1)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fmt.Fprintf(os.Stderr, "decode response: %v\n", err)
			os.Exit(1)
		}
	}
}
