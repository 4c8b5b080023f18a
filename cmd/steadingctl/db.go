package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd runs read-only queries against the sqlite history index. The index
// is a secondary read model; the journal stays authoritative.
func dbCmd(q string, args []string) {
	fs := flag.NewFlagSet(q, flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default <data>/index/steading.sqlite)")
	steward := fs.String("steward", "", "steward filter (productions, spends, farms)")
	week := fs.Int("week", -1, "week filter (optional)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "steading.sqlite")
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "days":
		rows, err := db.Query(`SELECT day,week,farms,productions,spends,farm_events,digest FROM days ORDER BY day DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Day         int    `json:"day"`
				Week        int    `json:"week"`
				Farms       int    `json:"farms"`
				Productions int    `json:"productions"`
				Spends      int    `json:"spends"`
				FarmEvents  int    `json:"farm_events"`
				Digest      string `json:"digest"`
			}
			if err := rows.Scan(&r.Day, &r.Week, &r.Farms, &r.Productions, &r.Spends, &r.FarmEvents, &r.Digest); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		checkRows(rows)

	case "weeks":
		rows, err := db.Query(`SELECT w.week,w.first_day,w.last_day,w.digest,s.steward,s.baseline,s.spent,s.remaining
			FROM weeks w JOIN week_stewards s ON s.week=w.week ORDER BY w.week DESC, s.steward LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Week      int    `json:"week"`
				FirstDay  int    `json:"first_day"`
				LastDay   int    `json:"last_day"`
				Digest    string `json:"digest"`
				Steward   string `json:"steward"`
				Baseline  int    `json:"baseline"`
				Spent     int    `json:"spent"`
				Remaining int    `json:"remaining"`
			}
			if err := rows.Scan(&r.Week, &r.FirstDay, &r.LastDay, &r.Digest, &r.Steward, &r.Baseline, &r.Spent, &r.Remaining); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		checkRows(rows)

	case "productions":
		query := `SELECT day,steward,week,sum,farms FROM productions`
		var conds []string
		var qargs []any
		if strings.TrimSpace(*steward) != "" {
			conds = append(conds, "steward=?")
			qargs = append(qargs, strings.TrimSpace(*steward))
		}
		if *week >= 0 {
			conds = append(conds, "week=?")
			qargs = append(qargs, *week)
		}
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		query += ` ORDER BY day DESC LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Day     int    `json:"day"`
				Steward string `json:"steward"`
				Week    int    `json:"week"`
				Sum     int    `json:"sum"`
				Farms   int    `json:"farms"`
			}
			if err := rows.Scan(&r.Day, &r.Steward, &r.Week, &r.Sum, &r.Farms); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		checkRows(rows)

	case "spends":
		query := `SELECT day,seq,steward,amount,source,ok,available,code FROM spends`
		var qargs []any
		if strings.TrimSpace(*steward) != "" {
			query += ` WHERE steward=?`
			qargs = append(qargs, strings.TrimSpace(*steward))
		}
		query += ` ORDER BY day DESC, seq DESC LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Day       int            `json:"day"`
				Seq       int            `json:"seq"`
				Steward   string         `json:"steward"`
				Amount    int            `json:"amount"`
				Source    string         `json:"source"`
				OK        bool           `json:"ok"`
				Available int            `json:"available"`
				Code      sql.NullString `json:"-"`
			}
			if err := rows.Scan(&r.Day, &r.Seq, &r.Steward, &r.Amount, &r.Source, &r.OK, &r.Available, &r.Code); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(struct {
				Day       int    `json:"day"`
				Seq       int    `json:"seq"`
				Steward   string `json:"steward"`
				Amount    int    `json:"amount"`
				Source    string `json:"source"`
				OK        bool   `json:"ok"`
				Available int    `json:"available"`
				Code      string `json:"code,omitempty"`
			}{r.Day, r.Seq, r.Steward, r.Amount, r.Source, r.OK, r.Available, r.Code.String})
		}
		checkRows(rows)

	case "farms":
		query := `SELECT day,seq,farm_id,steward,kind,cell_x,cell_y,active,yield,ok,code FROM farm_events`
		var qargs []any
		if strings.TrimSpace(*steward) != "" {
			query += ` WHERE steward=?`
			qargs = append(qargs, strings.TrimSpace(*steward))
		}
		query += ` ORDER BY day DESC, seq DESC LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				r struct {
					Day     int    `json:"day"`
					Seq     int    `json:"seq"`
					FarmID  string `json:"farm_id"`
					Steward string `json:"steward"`
					Kind    string `json:"kind,omitempty"`
					CellX   int    `json:"cell_x"`
					CellY   int    `json:"cell_y"`
					Active  bool   `json:"active"`
					Yield   int    `json:"yield"`
					OK      bool   `json:"ok"`
					Code    string `json:"code,omitempty"`
				}
				kind, code sql.NullString
			)
			if err := rows.Scan(&r.Day, &r.Seq, &r.FarmID, &r.Steward, &kind, &r.CellX, &r.CellY, &r.Active, &r.Yield, &r.OK, &code); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Kind, r.Code = kind.String, code.String
			printJSON(r)
		}
		checkRows(rows)
	}
}

func checkRows(rows *sql.Rows) {
	if err := rows.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "rows:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
