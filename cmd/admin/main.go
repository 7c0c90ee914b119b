package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	persistlog "voxelrealm.ai/internal/persistence/log"
	"voxelrealm.ai/internal/persistence/sqlstore"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: admin <command> [flags]

commands:
  state     print the live server state
  logout    force a user offline (-username)
  audit     print block edit audit entries
  promote   set a user's role (-username -role)
  ban       ban a user (-username)
  unban     lift a ban and account lock (-username)
  actions   list recent admin actions`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "state":
		stateCmd(args)
	case "logout":
		logoutCmd(args)
	case "audit":
		auditCmd(args)
	case "promote":
		promoteCmd(args)
	case "ban":
		banCmd(args, true)
	case "unban":
		banCmd(args, false)
	case "actions":
		actionsCmd(args)
	default:
		usage()
		os.Exit(2)
	}
}

func fail(v ...any) {
	fmt.Fprintln(os.Stderr, v...)
	os.Exit(1)
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fail("request:", err)
	}
	printBody(resp)
}

func logoutCmd(args []string) {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	username := fs.String("username", "", "user to force offline")
	_ = fs.Parse(args)
	if strings.TrimSpace(*username) == "" {
		fmt.Fprintln(os.Stderr, "missing -username")
		os.Exit(2)
	}

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/logout?username=" + url.QueryEscape(*username)
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fail("request:", err)
	}
	printBody(resp)
}

func printBody(resp *http.Response) {
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldName := fs.String("world", "", "only entries for this world")
	username := fs.String("username", "", "only entries by this user")
	limit := fs.Int("limit", 0, "keep only the newest N entries (0 = all)")
	_ = fs.Parse(args)

	entries, err := persistlog.ReadAudit(persistlog.AuditDir(*dataDir), persistlog.AuditFilter{
		World:    *worldName,
		Username: *username,
		Limit:    *limit,
	})
	if err != nil {
		fail("read audit:", err)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		_ = enc.Encode(e)
	}
}

func openStore(dataDir string) *sqlstore.Store {
	s, err := sqlstore.Open(filepath.Join(dataDir, "voxelrealm.db"))
	if err != nil {
		fail("open store:", err)
	}
	return s
}

func promoteCmd(args []string) {
	fs := flag.NewFlagSet("promote", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	username := fs.String("username", "", "user to change")
	role := fs.String("role", "admin", "player, moderator or admin")
	_ = fs.Parse(args)
	if strings.TrimSpace(*username) == "" {
		fmt.Fprintln(os.Stderr, "missing -username")
		os.Exit(2)
	}

	s := openStore(*dataDir)
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.SetRole(ctx, *username, *role); err != nil {
		fail("promote:", err)
	}
	fmt.Printf("%s is now %s (takes effect at next login)\n", *username, *role)
}

func banCmd(args []string, banned bool) {
	name := "unban"
	if banned {
		name = "ban"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	username := fs.String("username", "", "user to change")
	_ = fs.Parse(args)
	if strings.TrimSpace(*username) == "" {
		fmt.Fprintln(os.Stderr, "missing -username")
		os.Exit(2)
	}

	s := openStore(*dataDir)
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.SetBanned(ctx, *username, banned); err != nil {
		fail(name+":", err)
	}
	fmt.Printf("%s: %s\n", name, *username)
}

func actionsCmd(args []string) {
	fs := flag.NewFlagSet("actions", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	limit := fs.Int("limit", 50, "max rows")
	_ = fs.Parse(args)

	s := openStore(*dataDir)
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	acts, err := s.AdminActions(ctx, *limit)
	if err != nil {
		fail("actions:", err)
	}
	for _, a := range acts {
		fmt.Printf("%s\tactor=%d\t%s\t%s\t%s\n", a.At.UTC().Format(time.RFC3339), a.ActorID, a.Action, a.Target, a.Detail)
	}
}
