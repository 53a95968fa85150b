package db

import (
	"fmt"
	"io"
	"io/fs"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand. Output goes to out;
// failures are returned for the caller to report.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("missing migrate action")
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(out)
		return nil
	}

	migrations, err := MigrationsFS()
	if err != nil {
		return err
	}

	// Open without running migrations; the action decides what to apply.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "✓ All migrations applied successfully")
		return printVersion(out, database, migrations)

	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "✓ Migration rolled back successfully")
		return printVersion(out, database, migrations)

	case "status":
		st, err := database.GetMigrationStatus(migrations)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "=== Migration Status ===")
		fmt.Fprintf(out, "Current version: %d\n", st.CurrentVersion)
		fmt.Fprintf(out, "Latest available: %d\n", st.LatestVersion)
		fmt.Fprintf(out, "Dirty: %v\n", st.Dirty)
		fmt.Fprintf(out, "Schema migrations table exists: %v\n", st.TableExists)
		if st.Dirty {
			fmt.Fprintln(out, "\n⚠️  WARNING: Database is in a dirty state!")
			fmt.Fprintln(out, "A migration failed mid-execution. Inspect the database, then run:")
			fmt.Fprintln(out, "  volume migrate force <version>")
		} else if st.CurrentVersion < st.LatestVersion {
			fmt.Fprintf(out, "\nDatabase is %d version(s) behind. Run 'volume migrate up' to update.\n", st.LatestVersion-st.CurrentVersion)
		}
		return nil

	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: volume migrate force <version_number>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if err := database.MigrateForce(migrations, version); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Migration version forced to %d\n", version)
		return nil

	default:
		fmt.Fprintf(out, "Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

func printVersion(out io.Writer, database *DB, migrations fs.FS) error {
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

// PrintMigrateHelp displays the help message for the migrate command.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprintln(out, "Database Migration Commands")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage: volume migrate <command> [options]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  up              Apply all pending migrations")
	fmt.Fprintln(out, "  down            Rollback one migration")
	fmt.Fprintln(out, "  status          Show current migration status and version")
	fmt.Fprintln(out, "  force <N>       Force migration version to N (recovery only)")
	fmt.Fprintln(out, "  help            Show this help message")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Options:")
	fmt.Fprintln(out, "  -db <path>    Path to database file (default: volume.db)")
}
