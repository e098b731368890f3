package mailmerge

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOffsetTableLocate(t *testing.T) {
	// "Hi " "<<NA" "" "ME>>" "!"
	table := NewOffsetTable([]int{3, 4, 0, 4, 1})

	tests := []struct {
		name      string
		idx       int
		length    int
		wantSpan  Span
		wantFound bool
	}{
		{"inside first run", 0, 2, Span{0, 0}, true},
		{"across runs skipping empty", 3, 8, Span{1, 3}, true},
		{"starts at run boundary", 7, 4, Span{3, 3}, true},
		{"last byte", 11, 1, Span{4, 4}, true},
		{"whole text", 0, 12, Span{0, 4}, true},
		{"zero length", 3, 0, Span{}, false},
		{"negative length", 3, -1, Span{}, false},
		{"negative index", -1, 2, Span{}, false},
		{"past end", 10, 3, Span{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span, found := table.Locate(tt.idx, tt.length)
			if found != tt.wantFound {
				t.Fatalf("Locate(%d, %d) found = %v, want %v", tt.idx, tt.length, found, tt.wantFound)
			}
			if span != tt.wantSpan {
				t.Errorf("Locate(%d, %d) = %+v, want %+v", tt.idx, tt.length, span, tt.wantSpan)
			}
		})
	}
}

func TestOffsetTableEmpty(t *testing.T) {
	table := NewOffsetTable(nil)
	if table.Total() != 0 {
		t.Errorf("Total() = %d, want 0", table.Total())
	}
	if _, found := table.Locate(0, 1); found {
		t.Error("Locate on empty table should not find anything")
	}

	table = NewOffsetTable([]int{0, 0})
	if _, found := table.Locate(0, 1); found {
		t.Error("Locate over zero-length runs should not find anything")
	}
}

func TestSplice(t *testing.T) {
	tests := []struct {
		name   string
		texts  []string
		idx    int
		length int
		value  string
		want   []string
	}{
		{
			name:   "single run",
			texts:  []string{"Hi <<NAME>>!"},
			idx:    3,
			length: 8,
			value:  "Ada",
			want:   []string{"Hi Ada!"},
		},
		{
			name:   "span of three runs",
			texts:  []string{"Hi <<", "NAME", ">>!"},
			idx:    3,
			length: 8,
			value:  "Ada",
			want:   []string{"Hi Ada!", "", ""},
		},
		{
			name:   "runs outside span untouched",
			texts:  []string{"a", "<<N", ">>", "b"},
			idx:    1,
			length: 5,
			value:  "X",
			want:   []string{"a", "X", "", "b"},
		},
		{
			name:   "empty value",
			texts:  []string{"<<", "N>>"},
			idx:    0,
			length: 5,
			value:  "",
			want:   []string{"", ""},
		},
		{
			name:   "span skips empty run",
			texts:  []string{"<<", "", "N>>", "."},
			idx:    0,
			length: 5,
			value:  "v",
			want:   []string{"v", "", "", "."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := append([]string(nil), tt.texts...)
			table := tableFor(tt.texts)
			span, ok := table.Locate(tt.idx, tt.length)
			if !ok {
				t.Fatalf("Locate(%d, %d) not found", tt.idx, tt.length)
			}
			got := Splice(tt.texts, table, span, tt.idx, tt.length, tt.value)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Splice() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(input, tt.texts); diff != "" {
				t.Errorf("Splice() modified its input (-before +after):\n%s", diff)
			}
		})
	}
}
