package source_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/abbayes/internal/adapters/source"
	"github.com/okian/abbayes/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDetect(t *testing.T) {
	Convey("Formats are detected from the extension", t, func() {
		for path, want := range map[string]source.Format{
			"obs.csv":     source.FormatCSV,
			"obs.JSON":    source.FormatJSON,
			"obs.ndjson":  source.FormatJSON,
			"obs.jsonl":   source.FormatJSON,
			"obs.db":      source.FormatSQLite,
			"obs.sqlite3": source.FormatSQLite,
		} {
			got, err := source.Detect(path)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
		}
		_, err := source.Detect("obs.parquet")
		So(errors.Is(err, source.ErrUnsupportedFormat), ShouldBeTrue)
	})
}

func TestCSV(t *testing.T) {
	Convey("Given a CSV file with shuffled and extra columns", t, func() {
		path := writeFile(t, "obs.csv", "trials,day,arm_id,treat,conversions\n300,mon,0,0,10\n400,mon,1,1.0,20\n")
		recs, err := source.Load(context.Background(), path)

		So(err, ShouldBeNil)
		So(recs, ShouldHaveLength, 2)
		So(*recs[1].Treat, ShouldEqual, 1)
		So(recs[1].ArmID, ShouldEqual, model.ArmID("1"))
		So(*recs[1].Conversions, ShouldEqual, 20)
		So(*recs[0].Trials, ShouldEqual, 300)
	})

	Convey("Given a CSV file with an empty cell", t, func() {
		recs, err := source.DecodeCSV(strings.NewReader("treat,arm_id,conversions,trials\n0,a,,10\n"))
		So(err, ShouldBeNil)
		So(recs[0].Conversions, ShouldBeNil)
	})

	Convey("Given a CSV file missing a column", t, func() {
		_, err := source.DecodeCSV(strings.NewReader("treat,arm_id,trials\n0,a,10\n"))
		So(errors.Is(err, model.ErrSchema), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "conversions")
	})

	Convey("Given a CSV file with a non-numeric count", t, func() {
		_, err := source.DecodeCSV(strings.NewReader("treat,arm_id,conversions,trials\n0,a,many,10\n"))
		So(errors.Is(err, model.ErrSchema), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "row 1")
	})

	Convey("Given an empty CSV file", t, func() {
		_, err := source.DecodeCSV(strings.NewReader(""))
		So(errors.Is(err, model.ErrSchema), ShouldBeTrue)
	})
}

func TestJSON(t *testing.T) {
	Convey("Given a JSON array with numeric and string arm ids", t, func() {
		recs, err := source.DecodeJSON(strings.NewReader(`[
			{"treat": 0, "arm_id": 0, "conversions": 50, "trials": 1000},
			{"treat": 1, "arm_id": "b", "conversions": 60.0, "trials": 1000}
		]`))
		So(err, ShouldBeNil)
		So(recs, ShouldHaveLength, 2)
		So(recs[0].ArmID, ShouldEqual, model.ArmID("0"))
		So(recs[1].ArmID, ShouldEqual, model.ArmID("b"))
	})

	Convey("Given newline-delimited JSON", t, func() {
		path := writeFile(t, "obs.ndjson", "{\"treat\":0,\"arm_id\":\"0\",\"conversions\":1,\"trials\":2}\n{\"treat\":1,\"arm_id\":\"1\",\"conversions\":3,\"trials\":4}\n")
		recs, err := source.Load(context.Background(), path)
		So(err, ShouldBeNil)
		So(recs, ShouldHaveLength, 2)
		So(*recs[1].Trials, ShouldEqual, 4)
	})

	Convey("Given a record with a wrongly typed field", t, func() {
		_, err := source.DecodeJSON(strings.NewReader(`[{"treat": "control", "arm_id": 0}]`))
		So(errors.Is(err, model.ErrSchema), ShouldBeTrue)
	})

	Convey("Given the same rows as CSV and as JSON", t, func() {
		fromCSV, err := source.DecodeCSV(strings.NewReader("treat,arm_id,conversions,trials\n1.0,7.0,3,10\n0,1e20,1,10\n0,a,2,10\n"))
		So(err, ShouldBeNil)
		fromJSON, err := source.DecodeJSON(strings.NewReader(`[{"treat":1.0,"arm_id":7.0,"conversions":3,"trials":10},
			{"treat":0,"arm_id":1e20,"conversions":1,"trials":10},
			{"treat":0,"arm_id":"a","conversions":2,"trials":10}]`))
		So(err, ShouldBeNil)

		Convey("They decode to the same records", func() {
			So(fromCSV, ShouldResemble, fromJSON)
			So(fromCSV[0].ArmID, ShouldEqual, model.ArmID("7"))
			So(*fromCSV[0].Treat, ShouldEqual, 1)
			So(fromCSV[1].ArmID, ShouldEqual, model.ArmID("1e20"))
		})
	})

	Convey("Given a fractional treatment flag in CSV", t, func() {
		_, err := source.DecodeCSV(strings.NewReader("treat,arm_id,conversions,trials\n0.5,a,1,2\n"))
		So(errors.Is(err, model.ErrSchema), ShouldBeTrue)
	})

	Convey("Given a JSON scalar", t, func() {
		_, err := source.DecodeJSON(strings.NewReader(`42`))
		So(errors.Is(err, model.ErrSchema), ShouldBeTrue)
	})
}

func TestSQLite(t *testing.T) {
	Convey("Given records written to a SQLite database", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "obs.db")
		in := []model.Record{
			model.NewRecord(0, "0", 50, 1000),
			model.NewRecord(1, "1", 60, 1000),
			{ArmID: "2"},
		}
		So(source.WriteSQLite(ctx, path, "experiment", in), ShouldBeNil)

		Convey("They read back from the configured table", func() {
			recs, err := source.Load(ctx, path, source.WithTable("experiment"))
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 3)
			So(*recs[1].Treat, ShouldEqual, 1)
			So(*recs[1].Conversions, ShouldEqual, 60)
			So(recs[1].ArmID, ShouldEqual, model.ArmID("1"))
			So(recs[2].Treat, ShouldBeNil)
			So(recs[2].Trials, ShouldBeNil)
		})

		Convey("A missing table is a schema error", func() {
			_, err := source.Load(ctx, path)
			So(errors.Is(err, model.ErrSchema), ShouldBeTrue)
		})

		Convey("Table names are restricted to identifiers", func() {
			_, err := source.Open(path, source.WithTable("x; DROP TABLE experiment"))
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a database file that does not exist", t, func() {
		_, err := source.Load(context.Background(), filepath.Join(t.TempDir(), "none.db"))
		So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
	})
}

func TestWrite(t *testing.T) {
	Convey("Given records with an unset field", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		in := []model.Record{
			model.NewRecord(0, "a", 5, 100),
			model.NewRecord(1, "b", 7.5, 100),
			{ArmID: "c"},
		}

		for _, name := range []string{"obs.csv", "obs.ndjson", "obs.sqlite"} {
			path := filepath.Join(dir, name)

			Convey("They survive a round trip through "+name, func() {
				So(source.Write(ctx, path, "", in), ShouldBeNil)

				out, err := source.Load(ctx, path)
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 3)
				So(*out[1].Conversions, ShouldEqual, 7.5)
				So(out[1].ArmID, ShouldEqual, model.ArmID("b"))
				So(out[2].Treat, ShouldBeNil)
				So(out[2].Trials, ShouldBeNil)
			})
		}

		Convey("An unknown extension needs an explicit format", func() {
			path := filepath.Join(dir, "obs.txt")
			So(errors.Is(source.Write(ctx, path, "", in), source.ErrUnsupportedFormat), ShouldBeTrue)
			So(source.Write(ctx, path, source.FormatCSV, in), ShouldBeNil)

			out, err := source.Load(ctx, path, source.WithFormat(source.FormatCSV))
			So(err, ShouldBeNil)
			So(out, ShouldHaveLength, 3)
		})
	})
}
