// Package cli implements the interactive command-line interface for
// Squadron: fleet status, ad-hoc command execution, and session control
// without going through the REST API.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/squadron-project/squadron/internal/events"
	"github.com/squadron-project/squadron/internal/gateway"
	"github.com/squadron-project/squadron/internal/store"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	gateway  *gateway.Gateway
	store    store.Store
	shutdown func()
}

// NewCLI creates a new CLI handler. shutdown is invoked on quit.
func NewCLI(gw *gateway.Gateway, st store.Store, shutdown func()) *CLI {
	return &CLI{
		gateway:  gw,
		store:    st,
		shutdown: shutdown,
	}
}

// Start begins the interactive CLI loop. It returns when ctx is
// cancelled or stdin closes.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nSquadron CLI ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("squadron> ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return
		case line, ok = <-lines:
			if !ok {
				return
			}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "exec", "e":
		return c.cmdExec(ctx, args)
	case "restart":
		return c.cmdRestart(args)
	case "history":
		return c.cmdHistory(args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down Squadron...")
		if c.shutdown != nil {
			c.shutdown()
		}
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                     Squadron CLI Commands                    ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  status                Show every server's session state    ║")
	fmt.Println("║  exec <id> <command>   Run a console command on a server    ║")
	fmt.Println("║  restart <id>          Force a session reconnect            ║")
	fmt.Println("║  history <id> <type>   Show recent events (chat, etc.)      ║")
	fmt.Println("║  quit                  Shutdown Squadron                    ║")
	fmt.Println("║  help                  Show this help message               ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printStatus displays session status in a formatted table.
func (c *CLI) printStatus() {
	snapshots := c.gateway.Sessions()

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Server", "Address", "State", "Last Error"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, snap := range snapshots {
		lastErr := snap.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		tw.Append([]string{
			snap.ServerID,
			snap.Addr,
			strings.ToUpper(snap.State.String()),
			lastErr,
		})
	}

	tw.Render()
	fmt.Println()
}

func (c *CLI) cmdExec(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: exec <server-id> <command>")
	}

	serverID := args[0]
	command := strings.Join(args[1:], " ")

	result, err := c.gateway.Execute(ctx, serverID, command)
	if err != nil {
		return err
	}

	if result.Response == "" {
		fmt.Println("(empty response)")
	} else {
		fmt.Println(result.Response)
	}
	return nil
}

func (c *CLI) cmdRestart(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: restart <server-id>")
	}

	if err := c.gateway.ForceRestart(args[0]); err != nil {
		return err
	}
	fmt.Printf("Restart requested for %s\n", args[0])
	return nil
}

func (c *CLI) cmdHistory(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: history <server-id> <type> [limit]")
	}

	serverID := args[0]
	typ := events.Type(strings.ToLower(args[1]))
	if !typ.Valid() {
		return fmt.Errorf("unknown event type %q", args[1])
	}

	limit := 20
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid limit: %s", args[2])
		}
		limit = n
	}

	page, hasMore, err := c.store.Query(serverID, typ, limit, 0, 0)
	if err != nil {
		return err
	}

	if len(page) == 0 {
		fmt.Println("(no events)")
		return nil
	}

	for _, ev := range page {
		fmt.Printf("  #%d  %s  %+v\n", ev.ID, ev.Timestamp.Format("15:04:05"), ev.Payload)
	}
	if hasMore {
		fmt.Println("  ... more events available")
	}
	return nil
}
