package match

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "OLD1.mkv", want: "old1.mkv"},
		{name: "strips brackets", in: "[Group] Show - 01 [720p].mkv", want: "show 01.mkv"},
		{name: "strips parens", in: "Show (2019) - 05.mkv", want: "show 05.mkv"},
		{name: "collapses whitespace", in: "Show   -    01.mkv", want: "show 01.mkv"},
		{name: "keeps extension dot", in: "Show.S01E01.mkv", want: "show s01e01.mkv"},
		{name: "punctuation removed", in: "Show_-_01!.mkv", want: "show 01.mkv"},
		{name: "no extension", in: "README", want: "readme"},
		{name: "long tail not extension", in: "archive.backup2019", want: "archive backup2019"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEpisodeNumber(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   int
		wantOK bool
	}{
		{name: "plain number", in: "Show - 07.mkv", want: 7, wantOK: true},
		{name: "sxxeyy style", in: "Show.S01E04.mkv", want: 1, wantOK: true},
		{name: "skips resolution tag", in: "Show 720p - 12.mkv", want: 12, wantOK: true},
		{name: "skips 1080p", in: "1080p Show 03.mkv", want: 3, wantOK: true},
		{name: "skips codec tag", in: "Show x264 - 09.mkv", want: 9, wantOK: true},
		{name: "skips long runs", in: "Show [12345678] 02.mkv", want: 2, wantOK: true},
		{name: "no digits", in: "Show.mkv", wantOK: false},
		{name: "year is taken as-is", in: "Show 2019.mkv", want: 2019, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EpisodeNumber(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("EpisodeNumber(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("EpisodeNumber(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
