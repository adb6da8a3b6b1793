package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docrag/internal/domain"
	"docrag/internal/usecase"
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the configured LLM",
	Long: `Start a line-based chat session. History is kept per session in the
configured session backend. Type /reset to clear the session and /exit to quit.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatSession, "session", usecase.DefaultSessionID, "session ID")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := context.Background()

	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := a.chat.Reset(ctx, chatSession); err != nil {
				return err
			}
			fmt.Println("Session cleared.")
			continue
		}

		answer, err := a.chat.Ask(ctx, chatSession, line)
		if err != nil {
			if errors.Is(err, domain.ErrGeneration) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			return err
		}
		fmt.Println(answer)
	}
}
