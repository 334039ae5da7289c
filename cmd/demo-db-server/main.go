// Command demo-db-server is a reference db tool server: a sqlite-backed
// users table exposed over the framed stdio protocol as
// create_user/update_user/delete_user/list_users/get_user_by_id.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	_ "modernc.org/sqlite"
)

type request struct {
	ID   string         `json:"id"`
	Op   string         `json:"op"`
	Tool string         `json:"tool,omitempty"`
	URI  string         `json:"uri,omitempty"`
	Args map[string]any `json:"args,omitempty"`
}

type response struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func main() {
	dbPath := flag.String("db", ":memory:", "path to the sqlite database file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "demo-db-server")

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := initSchema(db); err != nil {
		logger.Error("initializing schema", "error", err)
		os.Exit(1)
	}

	srv := &dbServer{db: db, logger: logger}
	if err := serve(os.Stdin, os.Stdout, logger, srv.handle); err != nil {
		logger.Error("serving", "error", err)
		os.Exit(1)
	}
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id    INTEGER PRIMARY KEY AUTOINCREMENT,
			name  TEXT NOT NULL,
			email TEXT NOT NULL
		)
	`)
	return err
}

type dbServer struct {
	db     *sql.DB
	logger *slog.Logger
}

func (s *dbServer) handle(ctx context.Context, req request) (any, error) {
	switch req.Op {
	case "initialize":
		return map[string]any{"name": "demo-db-server", "version": "0.1.0"}, nil
	case "call_tool":
		return s.callTool(ctx, req.Tool, req.Args)
	case "read_resource":
		return nil, fmt.Errorf("demo-db-server: no resources exposed, got uri %q", req.URI)
	default:
		return nil, fmt.Errorf("demo-db-server: unknown op %q", req.Op)
	}
}

func (s *dbServer) callTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	switch tool {
	case "create_user":
		return s.createUser(ctx, args)
	case "update_user":
		return s.updateUser(ctx, args)
	case "delete_user":
		return s.deleteUser(ctx, args)
	case "list_users":
		return s.listUsers(ctx, args)
	case "get_user_by_id":
		return s.getUserByID(ctx, args)
	default:
		return nil, fmt.Errorf("demo-db-server: unknown tool %q", tool)
	}
}

func argString(args map[string]any, name string) (string, bool) {
	v, ok := args[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func argUserID(args map[string]any) (int64, error) {
	v, ok := args["user_id"]
	if !ok {
		return 0, fmt.Errorf("demo-db-server: missing user_id argument")
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("demo-db-server: user_id must be a number, got %T", v)
	}
}

func (s *dbServer) createUser(ctx context.Context, args map[string]any) (any, error) {
	name, ok := argString(args, "name")
	if !ok {
		return nil, fmt.Errorf("demo-db-server: create_user requires name")
	}
	email, ok := argString(args, "email")
	if !ok {
		return nil, fmt.Errorf("demo-db-server: create_user requires email")
	}

	res, err := s.db.ExecContext(ctx, "INSERT INTO users (name, email) VALUES (?, ?)", name, email)
	if err != nil {
		return nil, fmt.Errorf("demo-db-server: inserting user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("demo-db-server: reading inserted id: %w", err)
	}
	return map[string]any{"id": id, "name": name, "email": email}, nil
}

func (s *dbServer) updateUser(ctx context.Context, args map[string]any) (any, error) {
	id, err := argUserID(args)
	if err != nil {
		return nil, err
	}

	var setClauses []string
	var params []any
	if name, ok := argString(args, "name"); ok {
		setClauses = append(setClauses, "name = ?")
		params = append(params, name)
	}
	if email, ok := argString(args, "email"); ok {
		setClauses = append(setClauses, "email = ?")
		params = append(params, email)
	}
	if len(setClauses) == 0 {
		return nil, fmt.Errorf("demo-db-server: update_user requires name and/or email")
	}

	query := "UPDATE users SET " + joinSetClauses(setClauses) + " WHERE id = ?"
	params = append(params, id)
	if _, err := s.db.ExecContext(ctx, query, params...); err != nil {
		return nil, fmt.Errorf("demo-db-server: updating user: %w", err)
	}

	return s.fetchUser(ctx, id)
}

func joinSetClauses(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += ", " + c
	}
	return out
}

func (s *dbServer) deleteUser(ctx context.Context, args map[string]any) (any, error) {
	id, err := argUserID(args)
	if err != nil {
		return nil, err
	}

	var existing int64
	row := s.db.QueryRowContext(ctx, "SELECT id FROM users WHERE id = ?", id)
	if err := row.Scan(&existing); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("demo-db-server: user %d not found", id)
		}
		return nil, fmt.Errorf("demo-db-server: looking up user: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("demo-db-server: deleting user: %w", err)
	}
	return map[string]any{"deleted_id": existing}, nil
}

func (s *dbServer) listUsers(ctx context.Context, args map[string]any) (any, error) {
	query := "SELECT id, name, email FROM users WHERE 1=1"
	var params []any
	if name, ok := argString(args, "name_filter"); ok && name != "" {
		query += " AND name LIKE ?"
		params = append(params, "%"+name+"%")
	}
	if email, ok := argString(args, "email_filter"); ok && email != "" {
		query += " AND email LIKE ?"
		params = append(params, "%"+email+"%")
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("demo-db-server: listing users: %w", err)
	}
	defer rows.Close()

	users := []map[string]any{}
	for rows.Next() {
		var id int64
		var name, email string
		if err := rows.Scan(&id, &name, &email); err != nil {
			return nil, fmt.Errorf("demo-db-server: scanning user row: %w", err)
		}
		users = append(users, map[string]any{"id": id, "name": name, "email": email})
	}
	return users, rows.Err()
}

func (s *dbServer) getUserByID(ctx context.Context, args map[string]any) (any, error) {
	id, err := argUserID(args)
	if err != nil {
		return nil, err
	}
	return s.fetchUser(ctx, id)
}

func (s *dbServer) fetchUser(ctx context.Context, id int64) (any, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, name, email FROM users WHERE id = ?", id)
	var gotID int64
	var name, email string
	if err := row.Scan(&gotID, &name, &email); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("demo-db-server: user %d not found", id)
		}
		return nil, fmt.Errorf("demo-db-server: fetching user: %w", err)
	}
	return map[string]any{"id": gotID, "name": name, "email": email}, nil
}

// serve reads one JSON request per line from r, dispatches it to handle,
// and writes one JSON response per line to w. Requests are processed
// sequentially, matching the one-call-at-a-time contract a single
// leased session gives its caller.
func serve(r io.Reader, w io.Writer, logger *slog.Logger, handle func(context.Context, request) (any, error)) error {
	var writeMu sync.Mutex
	ctx := context.Background()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			logger.Warn("malformed request frame", "error", err)
			continue
		}

		result, err := handle(ctx, req)
		resp := response{ID: req.ID}
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result = result
		}

		body, err := json.Marshal(resp)
		if err != nil {
			logger.Warn("encoding response frame", "error", err)
			continue
		}
		body = append(body, '\n')

		writeMu.Lock()
		_, writeErr := w.Write(body)
		writeMu.Unlock()
		if writeErr != nil {
			return writeErr
		}
	}
	return scanner.Err()
}
