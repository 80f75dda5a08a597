package assembly_test

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bjaus/commandbus"
	"github.com/bjaus/commandbus/assembly"
)

func Example() {
	cfg, err := assembly.Parse([]byte(`
handlers:
  orders.create: orders.create_handler
`))
	if err != nil {
		fmt.Println(err)
		return
	}

	env := assembly.NewContainer().
		Set("orders.create_handler", commandbus.HandleFunc(func(ctx context.Context, cmd createOrder) error {
			fmt.Println("creating order", cmd.ID)
			return nil
		}))

	a, err := assembly.New(cfg, env, assembly.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer a.Close()

	d, err := a.Dispatcher()
	if err != nil {
		fmt.Println(err)
		return
	}

	if err := d.Dispatch(context.Background(), createOrder{ID: "42"}); err != nil {
		fmt.Println(err)
	}
	// Output: creating order 42
}

func ExampleRouteTable_Lookup() {
	cfg, _ := assembly.Parse([]byte(`
remote:
  transport:
    default: a
    connections:
      a: memory://
      b: amqp://host/vhost
    routes:
      orders.*: b
      "*": a
`))

	a, err := assembly.New(cfg, nil)
	if err != nil {
		fmt.Println(err)
		return
	}

	for _, cmd := range []string{"orders.created", "users.created"} {
		fmt.Println(cmd, "->", a.Routes().Lookup(cmd))
	}
	// Output:
	// orders.created -> b
	// users.created -> a
}
