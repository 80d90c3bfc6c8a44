package metadata

import (
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/docdr/internal/types"
)

func TestRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 30, 15, 123456789, time.FixedZone("CET", 3600))
	in := Record{
		"Name":              "Quarterly report.docx",
		"Unicode":           "Résumé – final",
		"NumericString":     "12345",
		"FloatString":       "1.5",
		"TimeString":        "2024-01-01T00:00:00Z",
		"Empty":             "",
		"Size":              int64(1 << 40),
		"Count":             7,
		"Ratio":             0.25,
		"Whole":             3.0,
		"Big":               1e21,
		"ModifiedTimestamp": ts,
	}

	enc, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for k := range enc {
		if strings.ToLower(k) != k {
			t.Errorf("stored key %q is not snake_case", k)
		}
	}

	out, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	for _, key := range []string{"Name", "Unicode", "NumericString", "FloatString", "TimeString", "Empty"} {
		if out[key] != in[key] {
			t.Errorf("%s: got %#v, want %#v", key, out[key], in[key])
		}
	}
	if out["Size"] != int64(1<<40) {
		t.Errorf("Size: got %#v", out["Size"])
	}
	if out["Count"] != int64(7) {
		t.Errorf("Count: got %#v, want int64(7)", out["Count"])
	}
	for _, key := range []string{"Ratio", "Whole", "Big"} {
		if out[key] != in[key] {
			t.Errorf("%s: got %#v, want %#v", key, out[key], in[key])
		}
	}
	got, ok := out.Time("ModifiedTimestamp")
	if !ok || !got.Equal(ts) || got.Location() != time.UTC {
		t.Errorf("ModifiedTimestamp: got %v (ok=%v), want %v in UTC", got, ok, ts)
	}
}

func TestRoundTripDecodedTypes(t *testing.T) {
	tests := []struct {
		name string
		in   Record
		want Record
	}{
		{"decoded types", Record{"Name": "a.txt", "Size": int64(5), "Ratio": 0.5, "Whole": 3.0}, nil},
		{"int comes back as int64", Record{"Size": 5}, Record{"Size": int64(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := tt.want
			if want == nil {
				want = tt.in
			}
			enc, err := Encode(tt.in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := Decode(enc)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(out, want) {
				t.Errorf("Decode(Encode(%#v)) = %#v, want %#v", tt.in, out, want)
			}
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	enc, err := Encode(Record{
		"ContentType": "text/plain",
		"Title":       "Café",
		"Whole":       2.0,
		"Count":       12,
		"At":          time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := map[string]string{
		"content_type": "text/plain",
		"base64_title": "Q2Fmw6k=",
		"whole":        "2.0",
		"count":        "12",
		"at":           "2024-01-02T03:04:05Z",
	}
	if len(enc) != len(want) {
		t.Fatalf("Encode produced %v, want %v", enc, want)
	}
	for k, v := range want {
		if enc[k] != v {
			t.Errorf("%s = %q, want %q", k, enc[k], v)
		}
	}
}

func TestEncodeRejects(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"lower camel key", Record{"name": "x"}},
		{"underscore key", Record{"Foo_Bar": "x"}},
		{"base64 prefix key", Record{"Base64Name": "x"}},
		{"non-ascii key", Record{"Größe": "x"}},
		{"empty key", Record{"": "x"}},
		{"nan", Record{"Ratio": math.NaN()}},
		{"inf", Record{"Ratio": math.Inf(1)}},
		{"bool", Record{"Flag": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.rec); err == nil {
				t.Errorf("Encode(%v) succeeded, want error", tt.rec)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(map[string]string{"base64_name": "%%%"}); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := Decode(map[string]string{"name": "a", "base64_name": "Yg=="}); err == nil {
		t.Error("expected error for a key stored both plain and encoded")
	}
}

func TestDecodeScalarOrder(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"4.5", 4.5},
		{"NaN", "NaN"},
		{"2024-05-06T07:08:09.5Z", time.Date(2024, 5, 6, 7, 8, 9, 500000000, time.UTC)},
		{"hello", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := decodeScalar(tt.in)
			if want, ok := tt.want.(time.Time); ok {
				if g, ok := got.(time.Time); !ok || !g.Equal(want) {
					t.Errorf("decodeScalar(%q) = %#v, want %v", tt.in, got, want)
				}
				return
			}
			if got != tt.want {
				t.Errorf("decodeScalar(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDocumentView(t *testing.T) {
	modified := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	rec := VersionRecord(types.DocumentVersion{
		DocumentID:        "d1",
		ParentFolderID:    "f1",
		VersionID:         "v3",
		Name:              "plan.txt",
		ContentType:       "text/plain",
		Size:              10,
		ContentModifiedAt: modified,
	})

	enc, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	view := DocumentView(dec)
	if id, _ := view.String(KeyID); id != "d1" {
		t.Errorf("Id = %q, want d1", id)
	}
	if _, ok := view[KeyName]; ok {
		t.Error("Name should be grouped under LatestVersionMetadata")
	}
	latest, ok := view.Sub(KeyLatestVersionMetadata)
	if !ok {
		t.Fatal("LatestVersionMetadata missing")
	}
	if name, _ := latest.String(KeyName); name != "plan.txt" {
		t.Errorf("latest Name = %q", name)
	}
	if size, _ := latest.Int64(KeySize); size != 10 {
		t.Errorf("latest Size = %d", size)
	}
	if ts, _ := latest.Time(KeyContentModifiedTimestamp); !ts.Equal(modified) {
		t.Errorf("latest ContentModifiedTimestamp = %v", ts)
	}
}

func TestUserViewAndFolderView(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	user := UserView(Record{"Username": "alice", "LastModified": now})
	if _, ok := user[KeyLastModified]; ok {
		t.Error("LastModified should be renamed")
	}
	if ts, _ := user.Time(KeyModifiedTimestamp); !ts.Equal(now) {
		t.Errorf("ModifiedTimestamp = %v, want %v", ts, now)
	}

	folder := FolderView(Record{"Name": "Docs", "Custom": int64(1)})
	if folder["Custom"] != int64(1) || folder["Name"] != "Docs" {
		t.Errorf("FolderView changed keys: %v", folder)
	}
}

func TestRecordBuildersEncode(t *testing.T) {
	at := time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)
	records := []Record{
		FolderRecord(types.FolderRef{ID: "f1", Name: "Éléments", ParentID: "root", State: types.StateActive, ModifiedAt: at}),
		UserRecord(types.User{ID: "u1", Username: "bob", Email: "bob@example.com", RootFolderID: "r1", ModifiedAt: at}),
	}
	for _, r := range records {
		if _, err := Encode(r); err != nil {
			t.Errorf("Encode(%v): %v", r, err)
		}
	}
}
