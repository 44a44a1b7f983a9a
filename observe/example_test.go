package observe_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/reqflow/observe"
)

func ExampleRequestMeta_SpanName() {
	meta := observe.RequestMeta{Method: "post", Endpoint: "/widgets?page=2"}
	fmt.Println(meta.SpanName())
	fmt.Println(meta.Path())
	// Output:
	// reqflow.request POST
	// /widgets
}

func ExampleConfig_Validate() {
	cfg := observe.Config{
		ServiceName: "reqflow",
		Tracing:     observe.TracingConfig{Enabled: true, Exporter: "zipkin"},
	}
	err := cfg.Validate()
	fmt.Println(errors.Is(err, observe.ErrInvalidTracingExporter))
	// Output:
	// true
}

func ExampleParseLogLevel() {
	fmt.Println(observe.ParseLogLevel("warn"))
	fmt.Println(observe.ParseLogLevel("unknown"))
	// Output:
	// warn
	// info
}

func ExampleMiddleware_Wrap() {
	mw := observe.NopMiddleware()
	fetch := mw.Wrap(func(ctx context.Context, meta observe.RequestMeta) (any, error) {
		return "fetched " + meta.Endpoint, nil
	})

	result, err := fetch(context.Background(), observe.RequestMeta{Endpoint: "/widgets"})
	fmt.Println(result, err)
	// Output:
	// fetched /widgets <nil>
}
