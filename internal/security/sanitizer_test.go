package security

import "testing"

func TestNotificationSanitizer_StripsTags(t *testing.T) {
	sanitizer := NewNotificationSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンテキストはそのまま通過する",
			input: "あなたの投稿が予約されました。",
			want:  "あなたの投稿が予約されました。",
		},
		{
			name:  "scriptタグは内容ごと除去される",
			input: `<script>alert("x")</script>新着通知`,
			want:  "新着通知",
		},
		{
			name:  "aタグはテキストのみ残る",
			input: `<a href="https://evil.example.com">こちら</a>をタップ`,
			want:  "こちらをタップ",
		},
		{
			name:  "imgタグは除去される",
			input: `配達完了<img src="https://example.com/x.png">`,
			want:  "配達完了",
		},
		{
			name:  "空文字列は空文字列を返す",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotificationSanitizer_Idempotent(t *testing.T) {
	sanitizer := NewNotificationSanitizer()

	input := `<p>予約<script>x()</script>されました</p>`
	once := sanitizer.Sanitize(input)
	twice := sanitizer.Sanitize(once)
	if once != twice {
		t.Errorf("冪等性が保たれていません: once=%q twice=%q", once, twice)
	}
}
