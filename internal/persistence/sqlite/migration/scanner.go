package migration

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// fsScanner implements FileScanner over an fs.FS
type fsScanner struct {
	fsys fs.FS
	dir  string
}

// NewFileScanner creates a FileScanner reading migrations from the root of fsys
func NewFileScanner(fsys fs.FS) FileScanner {
	return &fsScanner{fsys: fsys, dir: "."}
}

// ScanMigrations scans the file system for migration files
func (s *fsScanner) ScanMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(s.fsys, s.dir)
	if err != nil {
		return nil, NewMigrationError("", s.dir, "read directory", err)
	}

	var migrations []Migration
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		migration, err := s.parse(entry.Name())
		if err != nil {
			return nil, err
		}
		if existing, ok := seen[migration.Version]; ok {
			return nil, NewMigrationError(migration.Version, entry.Name(), "check duplicates",
				fmt.Errorf("%w: version %s found in both %s and %s", ErrDuplicateVersion, migration.Version, existing, entry.Name()))
		}
		seen[migration.Version] = entry.Name()
		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return versionNumber(migrations[i].Version) < versionNumber(migrations[j].Version)
	})
	return migrations, nil
}

func (s *fsScanner) parse(name string) (Migration, error) {
	matches := migrationFilePattern.FindStringSubmatch(name)
	if matches == nil {
		return Migration{}, NewMigrationError("", name, "validate filename",
			fmt.Errorf("%w: filename '%s' does not match pattern '{version}_{description}.sql'", ErrInvalidMigrationFile, name))
	}
	version := matches[1]

	filePath := path.Join(s.dir, name)
	content, err := fs.ReadFile(s.fsys, filePath)
	if err != nil {
		return Migration{}, NewMigrationError(version, filePath, "read file", err)
	}

	sql := string(content)
	if len(SplitStatements(sql)) == 0 {
		return Migration{}, NewMigrationError(version, filePath, "validate content",
			fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile))
	}

	description := descriptionFromContent(sql)
	if description == "" {
		description = strings.ReplaceAll(matches[2], "_", " ")
	}

	return Migration{
		Version:     version,
		Description: description,
		SQL:         sql,
		FilePath:    filePath,
		Checksum:    fmt.Sprintf("%x", sha256.Sum256(content)),
	}, nil
}

// descriptionFromContent reads a leading "-- Description: ..." comment
func descriptionFromContent(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}
		if strings.HasPrefix(line, "-- Description:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "-- Description:"))
		}
	}
	return ""
}

// SplitStatements splits SQL content into individual statements, dropping
// comment-only lines
func SplitStatements(sql string) []string {
	var statements []string
	for _, stmt := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}

func versionNumber(version string) int {
	n, err := strconv.Atoi(version)
	if err != nil {
		return -1
	}
	return n
}
