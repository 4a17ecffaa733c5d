package params

import "testing"

func TestTemplateExpander(t *testing.T) {
	vars := map[string]string{
		"MADCORE_PUBLIC_IP": "1.2.3.4",
		"MADCORE_S3_BUCKET": "bucket-1",
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{name: "plain value", template: "us-east-1", want: "us-east-1"},
		{name: "empty", template: "", want: ""},
		{name: "single placeholder", template: "http://{{ MADCORE_PUBLIC_IP }}:8080", want: "http://1.2.3.4:8080"},
		{name: "two placeholders", template: "{{MADCORE_S3_BUCKET}}/{{MADCORE_PUBLIC_IP}}", want: "bucket-1/1.2.3.4"},
		{name: "filter", template: "{{ MADCORE_S3_BUCKET|upper }}", want: "BUCKET-1"},
		{name: "unknown name", template: "{{ MADCORE_VPC_ID }}", want: "{{ MADCORE_VPC_ID }}"},
		{name: "partially unknown", template: "{{ MADCORE_PUBLIC_IP }}-{{ OTHER }}", want: "{{ MADCORE_PUBLIC_IP }}-{{ OTHER }}"},
		{name: "syntax error", template: "{{ MADCORE_PUBLIC_IP ", want: "{{ MADCORE_PUBLIC_IP "},
		{name: "tag", template: "{% if MADCORE_PUBLIC_IP %}up{% endif %}", want: "up"},
		{name: "filter argument", template: `{{ MADCORE_S3_BUCKET|default:"none" }}`, want: "bucket-1"},
		{name: "unknown filter", template: "{{ MADCORE_PUBLIC_IP|nosuchfilter }}", want: "{{ MADCORE_PUBLIC_IP|nosuchfilter }}"},
		{name: "with binding", template: "{% with ip=MADCORE_PUBLIC_IP %}{{ ip }}{% endwith %}", want: "1.2.3.4"},
		{name: "with as binding", template: "{% with MADCORE_S3_BUCKET as b %}s3://{{ b }}{% endwith %}", want: "s3://bucket-1"},
		{name: "with unknown source", template: "{% with ip=MADCORE_VPC_ID %}{{ ip }}{% endwith %}", want: "{% with ip=MADCORE_VPC_ID %}{{ ip }}{% endwith %}"},
		{name: "set binding", template: "{% set host = MADCORE_PUBLIC_IP %}{{ host }}", want: "1.2.3.4"},
		{name: "loop variable", template: "{% for c in MADCORE_S3_BUCKET %}{% if forloop.First %}{{ c|upper }}{% endif %}{% endfor %}", want: "B"},
	}

	e := NewTemplateExpander(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Expand(tt.template, vars); got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestTemplateExpanderEmptyContextIsNoop(t *testing.T) {
	e := NewTemplateExpander(nil)
	for _, tpl := range []string{"{{ A }}", "x{{B}}y", "{% if A %}a{% endif %}", "plain"} {
		if got := e.Expand(tpl, nil); got != tpl {
			t.Errorf("Expand(%q, nil) = %q, want input unchanged", tpl, got)
		}
	}
}
