// Package loop 演示用终端对话循环
package loop

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/cxykevin/mizar0/engine"
	"github.com/cxykevin/mizar0/log"
	"github.com/cxykevin/mizar0/storage"
)

const (
	// ColorReset 重置颜色
	ColorReset = "\033[0m"
	// ColorRed 红色
	ColorRed = "\033[31m"
	// ColorGreen 绿色
	ColorGreen = "\033[32m"
	// ColorYellow 黄色
	ColorYellow = "\033[33m"
	// ColorBlue 蓝色
	ColorBlue = "\033[34m"
	// ColorCyan 青色
	ColorCyan = "\033[36m"
	// ColorBold 加粗
	ColorBold = "\033[1m"
)

var logger *log.LogsObj

func init() {
	logger = log.New("loop")
}

func unwrap[T any](args T, err error) T {
	if err != nil {
		panic(err)
	}
	return args
}

func printHeader(title string) {
	fmt.Printf("\n%s%s╔════════════════════════════════════════════════════════════╗%s\n", ColorBold, ColorCyan, ColorReset)
	fmt.Printf("%s%s║%s  %-58s%s%s║%s\n", ColorBold, ColorCyan, ColorReset, title, ColorBold, ColorCyan, ColorReset)
	fmt.Printf("%s%s╚════════════════════════════════════════════════════════════╝%s\n", ColorBold, ColorCyan, ColorReset)
}

func printHelp() {
	fmt.Printf("\n%sCommands:%s\n", ColorBold, ColorReset)
	fmt.Printf("  %s/reset%s     %sArchive the conversation and start fresh%s\n", ColorGreen, ColorReset, ColorBlue, ColorReset)
	fmt.Printf("  %s/undo N%s    %sDrop the newest N messages%s\n", ColorGreen, ColorReset, ColorBlue, ColorReset)
	fmt.Printf("  %s/alt%s       %sToggle the alternate provider pool%s\n", ColorGreen, ColorReset, ColorBlue, ColorReset)
	fmt.Printf("  %s/history%s   %sShow the stored conversation%s\n", ColorGreen, ColorReset, ColorBlue, ColorReset)
	fmt.Printf("  %s/quit%s      %sExit%s\n", ColorGreen, ColorReset, ColorBlue, ColorReset)
}

func showHistory(store storage.Store, convID string) {
	conv, err := store.GetConversation(convID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && len(conv.Messages) == 0) {
		fmt.Printf("%s%sNo messages yet. Start typing to begin!%s\n", ColorYellow, ColorBold, ColorReset)
		return
	}
	if err != nil {
		fmt.Printf("%s❌ Failed to load history: %v%s\n", ColorRed, err, ColorReset)
		return
	}
	for _, msg := range conv.Messages {
		if msg.Type == 0 {
			fmt.Printf("\n%s%s┌─ User ─┐%s\n%s\n", ColorBold, ColorGreen, ColorReset, msg.Content)
		} else {
			fmt.Printf("\n%s%s┌─ AI ─┐%s\n%s\n", ColorBold, ColorBlue, ColorReset, msg.Content)
		}
	}
}

// Start 启动对话循环
func Start(ctx context.Context, eng *engine.Engine, store storage.Store, convID string, userName string) {
	logger.Info("loop initing")
	reader := bufio.NewReader(os.Stdin)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Printf("\n%s%sGoodbye!%s\n", ColorBold, ColorCyan, ColorReset)
			os.Exit(0)
		case <-ctx.Done():
		}
	}()

	printHeader(fmt.Sprintf("Conversation: %s", convID))
	showHistory(store, convID)
	printHelp()

	useAlternate := false
	for {
		fmt.Printf("\n%s%s│ You>%s ", ColorBold, ColorGreen, ColorReset)
		input := strings.TrimSpace(unwrap(reader.ReadString('\n')))
		if input == "" {
			continue
		}
		logger.Debug("user input: %v", input)

		switch {
		case input == "/quit":
			fmt.Printf("%s%sGoodbye!%s\n", ColorBold, ColorCyan, ColorReset)
			return
		case input == "/help":
			printHelp()
			continue
		case input == "/history":
			showHistory(store, convID)
			continue
		case input == "/reset":
			if err := eng.Reset(convID); err != nil {
				fmt.Printf("%s❌ Reset failed: %v%s\n", ColorRed, err, ColorReset)
				continue
			}
			fmt.Printf("%s✓ Conversation archived and cleared%s\n", ColorGreen, ColorReset)
			continue
		case input == "/alt":
			useAlternate = !useAlternate
			fmt.Printf("%s✓ Alternate pool: %v%s\n", ColorGreen, useAlternate, ColorReset)
			continue
		case strings.HasPrefix(input, "/undo"):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(input, "/undo")))
			if err != nil || n <= 0 {
				fmt.Printf("%s❌ Usage: /undo N%s\n", ColorRed, ColorReset)
				continue
			}
			if err := eng.DeleteLast(convID, n); err != nil {
				fmt.Printf("%s❌ Undo failed: %v%s\n", ColorRed, err, ColorReset)
				continue
			}
			fmt.Printf("%s✓ Dropped newest %d messages%s\n", ColorGreen, n, ColorReset)
			continue
		}

		fmt.Printf("\n%s%s┌─ AI ─┐%s\n", ColorBold, ColorBlue, ColorReset)
		streamed := false
		text, err := eng.Ask(ctx, convID, input, engine.AskOptions{
			UserName:     userName,
			UseAlternate: useAlternate,
		}, func(delta string) {
			streamed = true
			fmt.Print(delta)
		})
		// 非流式模式下回调不会触发，完整打印
		if err == nil && !streamed {
			fmt.Print(text)
		}
		fmt.Println()
		if err != nil {
			logger.Error("ask failed: %v", err)
			fmt.Printf("%s❌ %v%s\n", ColorRed, err, ColorReset)
		}
	}
}
