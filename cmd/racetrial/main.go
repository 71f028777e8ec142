package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/abrezinsky/racetrial/internal/app"
	"github.com/abrezinsky/racetrial/internal/auth"
	"github.com/abrezinsky/racetrial/internal/browser"
	"github.com/abrezinsky/racetrial/internal/logger"
	"github.com/abrezinsky/racetrial/web"
)

var version = "dev"

const (
	clearLine = "\033[2K"
	moveUp    = "\033[%dA"
)

var (
	cyan   = text.Colors{text.FgCyan}
	yellow = text.Colors{text.FgYellow}
	green  = text.Colors{text.FgGreen}
	red    = text.Colors{text.FgRed}
	bold   = text.Colors{text.Bold, text.FgGreen}
)

// showStartupAnimation prints the logo and, unless skipped, a short lap of the banner.
func showStartupAnimation(skipRace bool) {
	const width = 62
	border := strings.Repeat("═", width)

	logo := []string{
		"    ____                   _____     _       _ ",
		"   |  _ \\ __ _  ___ ___   |_   _| __(_) __ _| |",
		"   | |_) / _` |/ __/ _ \\    | || '__| |/ _` | |",
		"   |  _ < (_| | (_|  __/    | || |  | | (_| | |",
		"   |_| \\_\\__,_|\\___\\___|    |_||_|  |_|\\__,_|_|",
	}

	fmt.Printf("\n  %s\n", cyan.Sprint("╔"+border+"╗"))
	for _, line := range logo {
		fmt.Printf("  %s%s%s\n", cyan.Sprint("║"), yellow.Sprint(fmt.Sprintf("%-*s", width, line)), cyan.Sprint("║"))
	}
	fmt.Printf("  %s\n", cyan.Sprint("╚"+border+"╝"))
	if skipRace {
		fmt.Println()
		return
	}

	fmt.Printf(moveUp, 1)
	fmt.Printf("%s  %s\n", clearLine, cyan.Sprint("╠"+border+"╣"))

	cars := []struct {
		art   string
		color text.Colors
	}{
		{`__/¯¯\__`, red},
		{`=<[##]>=`, text.Colors{text.FgBlue}},
		{`-=[==]=-`, green},
	}
	const carLen = 8
	finish := width - carLen

	speeds := []int{3, 4, 5}
	rand.Shuffle(len(speeds), func(i, j int) { speeds[i], speeds[j] = speeds[j], speeds[i] })
	positions := make([]int, len(cars))
	finishFrame := make([]int, len(cars))

	for i := 0; i <= len(cars); i++ {
		fmt.Println()
	}
	for frame := 0; frame < 20; frame++ {
		fmt.Printf(moveUp, len(cars)+1)
		for i, car := range cars {
			if positions[i] < finish {
				positions[i] += speeds[i]
				if positions[i] >= finish {
					positions[i] = finish
					finishFrame[i] = frame
				}
			}
			trail := strings.Repeat(" ", width-positions[i]-carLen)
			fmt.Printf("%s  %s%s%s%s%s\n", clearLine, cyan.Sprint("║"), strings.Repeat(" ", positions[i]),
				car.color.Sprint(car.art), trail, cyan.Sprint("║"))
		}
		fmt.Printf("%s  %s\n", clearLine, cyan.Sprint("╚"+border+"╝"))
		time.Sleep(80 * time.Millisecond)
	}

	winner := 0
	for i := range cars {
		if finishFrame[i] < finishFrame[winner] {
			winner = i
		}
	}
	fmt.Printf("  %s %s\n\n", cars[winner].color.Sprint(cars[winner].art), yellow.Sprint("takes the flag"))
}

// cycleLogLevel cycles through debug -> info -> warn -> error
func cycleLogLevel(appLog *logger.SlogLogger) {
	next := map[string]string{"DEBUG": "info", "INFO": "warn", "WARN": "error", "ERROR": "debug"}[appLog.GetLevel().String()]
	if next == "" {
		next = "info"
	}
	appLog.SetLevel(logger.ParseLevel(next))
	fmt.Printf("%s%s\n", green.Sprint("Log level: "), yellow.Sprint(next))
}

// printKeyboardHelp displays all available keyboard shortcuts
func printKeyboardHelp() {
	fmt.Printf("\n  %s\n", bold.Sprint("Keyboard shortcuts:"))
	fmt.Printf("    %s      - Open race control in browser\n", cyan.Sprint("a"))
	fmt.Printf("    %s      - Open live board in browser\n", cyan.Sprint("b"))
	fmt.Printf("    %s      - Toggle HTTP request logging\n", cyan.Sprint("h"))
	fmt.Printf("    %s      - Cycle log level (debug → info → warn → error)\n", cyan.Sprint("l"))
	fmt.Printf("    %s      - Quit server\n", cyan.Sprint("q"))
	fmt.Printf("    %s      - Show this help\n\n", cyan.Sprint("?"))
}

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "racetrial.db", "SQLite database path")
	adminPw := flag.String("adminpw", "", "Admin password (auto-generated if not set)")
	logLevel := flag.String("loglevel", "info", "Log level (debug, info, warn, error)")
	tickRate := flag.Duration("tickrate", app.DefaultTickRate, "Engine tick interval")
	noAnimate := flag.Bool("noanimate", false, "Show logo only, skip race animation")
	noKeyboard := flag.Bool("nokeyboard", false, "Disable keyboard shortcuts")
	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `RaceTrial - time trials and races on recorded routes

Usage:
  racetrial [options]

Options:
  -port int        HTTP server port (default 8080)
  -db string       SQLite database path (default "racetrial.db")
  -adminpw str     Admin password (auto-generated if not set)
  -loglevel str    Log level: debug, info, warn, error (default "info")
  -tickrate dur    Engine tick interval (default 50ms)
  -noanimate       Show logo only, skip race animation
  -nokeyboard      Disable keyboard shortcuts
  -version         Show version and exit

Examples:
  racetrial                          # Run on port 8080 with racetrial.db
  racetrial -port 9000 -db track.db  # Custom port and database
  racetrial -tickrate 20ms           # Finer progress tracking
`)
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("racetrial %s\n", version)
		os.Exit(0)
	}

	showStartupAnimation(*noAnimate)

	password := *adminPw
	if password == "" {
		password = auth.GeneratePassword()
	}
	adminAuth := auth.New(password)

	appLog := logger.NewWithLevel(logger.ParseLevel(*logLevel))

	a, err := app.New(appLog, app.Config{DBPath: *dbPath, TickRate: *tickRate},
		web.GetTemplatesFS(), web.GetStaticFS(), adminAuth)
	if err != nil {
		log.Fatal("Failed to initialize application:", err)
	}
	appLog.Info("Admin password", "password", password)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.Run(fmt.Sprintf(":%d", *port))
	}()

	if !*noKeyboard {
		printKeyboardHelp()
		go listenForKeyboard(&console{
			launcher: browser.NewLauncher(*port),
			log:      appLog,
			quit:     stop,
		})
	} else {
		fmt.Printf("\n%s\n\n", yellow.Sprint("Keyboard shortcuts disabled (use -nokeyboard=false to enable)"))
	}

	select {
	case err := <-serverErr:
		a.Close()
		if err != nil {
			log.Fatal(err)
		}
	case <-ctx.Done():
		fmt.Println(yellow.Sprint("Shutting down server..."))
		a.Close()
	}
}
