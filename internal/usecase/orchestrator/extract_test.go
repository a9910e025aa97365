package orchestrator

import "testing"

func TestExtractStructured(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    map[string]string
	}{
		{
			name:    "labeled fields",
			message: "姓名：张三，电话：13800138000，邮箱：zhangsan@example.com",
			want: map[string]string{
				"name":  "张三",
				"phone": "13800138000",
				"email": "zhangsan@example.com",
			},
		},
		{
			name:    "colloquial name",
			message: "我叫李四，住在北京",
			want:    map[string]string{"name": "李四"},
		},
		{
			name:    "bare phone",
			message: "可以打13912345678找我",
			want:    map[string]string{"phone": "13912345678"},
		},
		{
			name:    "address and amount",
			message: "地址：上海市浦东新区张江路100号，金额：1234.56",
			want: map[string]string{
				"address": "上海市浦东新区张江路100号",
				"amount":  "1234.56",
			},
		},
		{
			name:    "nothing to extract",
			message: "今天天气不错",
			want:    map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractStructured(tt.message)
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractStructured() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("field %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestExtractStructured_FirstMatchWins(t *testing.T) {
	got := ExtractStructured("姓名：张三，我叫李四")
	if got["name"] != "张三" {
		t.Errorf("name = %q, want 张三 (first pattern wins)", got["name"])
	}
}

func TestExtractURL(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"请帮我填写 https://example.com/form 这个表单", "https://example.com/form"},
		{"打开http://bpm.internal/expense，谢谢", "http://bpm.internal/expense"},
		{"没有链接", ""},
	}

	for _, tt := range tests {
		if got := ExtractURL(tt.message); got != tt.want {
			t.Errorf("ExtractURL(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}
