package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"veinlocate.ai/internal/persistence/indexdb"
	persistlog "veinlocate.ai/internal/persistence/log"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "queries"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "queries.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "queries":
		recs, err := indexdb.Recent(context.Background(), db, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range recs {
			printJSON(r)
		}

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "top":
		// Most frequently returned veins.
		rows, err := db.Query(`SELECT nearest, COUNT(*) AS n FROM queries WHERE found=1 GROUP BY nearest ORDER BY n DESC, nearest LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Vein  string `json:"vein"`
				Count int    `json:"count"`
			}
			if err := rows.Scan(&r.Vein, &r.Count); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query; expected one of: queries, catalogs, top")
		os.Exit(2)
	}
}

// logCmd dumps the compressed query log, optionally a single file.
func logCmd(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	file := fs.String("file", "", "single .jsonl.zst file (optional)")
	vein := fs.String("vein", "", "only records for this vein id")
	_ = fs.Parse(args)

	files := []string{strings.TrimSpace(*file)}
	if files[0] == "" {
		var err error
		files, err = persistlog.QueryFiles(*dataDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list:", err)
			os.Exit(1)
		}
	}
	for _, p := range files {
		recs, err := persistlog.ReadQueryFile(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, r := range recs {
			if *vein != "" && r.Vein != *vein && r.Nearest != *vein {
				continue
			}
			printJSON(r)
		}
	}
}

func queriesCmd(args []string) {
	fs := flag.NewFlagSet("queries", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	u := fmt.Sprintf("%s/admin/v1/queries?limit=%d", strings.TrimRight(strings.TrimSpace(*baseURL), "/"), *limit)
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
