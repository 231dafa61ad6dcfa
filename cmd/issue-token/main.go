// Command issue-token signs a student bearer token and registers it as the
// student's active login. Operators use it to test the exam API and to
// recover a student locked out by a stale device.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/database"
	"github.com/stemsi/exstem-engine/internal/logger"
	"github.com/stemsi/exstem-engine/internal/service"
	"golang.org/x/term"
)

func main() {
	studentID := flag.Int("student", 0, "Student ID to issue a token for")
	revoke := flag.Bool("revoke", false, "Revoke the student's active login instead of issuing")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if *studentID <= 0 {
		id, err := promptStudentID()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(2)
		}
		*studentID = id
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	auth := service.NewAuthService(cfg, rdb)

	if *revoke {
		if err := auth.RevokeStudentSession(ctx, *studentID); err != nil {
			log.Fatal().Err(err).Int("student_id", *studentID).Msg("Revoke failed")
		}
		log.Info().Int("student_id", *studentID).Msg("Login revoked")
		return
	}

	token, err := auth.IssueStudentToken(ctx, *studentID)
	if err != nil {
		log.Fatal().Err(err).Int("student_id", *studentID).Msg("Issue failed")
	}
	log.Info().Int("student_id", *studentID).Dur("expires_in", cfg.JWTExpiry).Msg("Token issued")
	fmt.Println(token)
}

// promptStudentID reads the id from stdin, prompting when it is a terminal.
func promptStudentID() (int, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Enter Student ID: ")
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return 0, fmt.Errorf("read student id: %w", err)
	}
	id, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("student id must be a positive integer, got %q", strings.TrimSpace(line))
	}
	return id, nil
}
