package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/fafmau/quizd/internal/question"
)

func newImportQuestionsCmd(configPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import-questions",
		Short: "Load the question bank file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportQuestions(cmd.Context(), *configPath, file)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "question bank file (defaults to questions.file from config)")
	return cmd
}

func runImportQuestions(ctx context.Context, configPath, file string) error {
	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if c.Postgres.Addr == "" {
		return fmt.Errorf("postgres is not configured")
	}

	if file == "" {
		file = c.Questions.File
	}

	questions, err := question.ParseFile(file)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return fmt.Errorf("no valid questions in %s", file)
	}

	db, err := pgxpool.New(ctx, c.PostgresDSN())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	const stmt = `
INSERT INTO questions (prompt, correct_choice, wrong1, wrong2, wrong3)
VALUES ($1, $2, $3, $4, $5);`

	for _, q := range questions {
		// Pool copies keep file order: the correct choice first, then the
		// three wrong ones.
		wrongs := q.Choices[1:]
		if _, err := db.Exec(ctx, stmt, q.Text, q.Correct, wrongs[0], wrongs[1], wrongs[2]); err != nil {
			return fmt.Errorf("insert question %d: %w", q.ID, err)
		}
	}

	slog.InfoContext(ctx, fmt.Sprintf("import-questions: loaded %d questions from %s", len(questions), file))
	return nil
}
