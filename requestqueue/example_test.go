/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package requestqueue_test

import (
	"context"
	"fmt"

	"go.uber.org/atomic"

	"github.com/bigschom/ss-portal/requestqueue"
)

func Example() {
	queue, err := requestqueue.New[string](requestqueue.Opts{MaxConcurrent: 2})
	if err != nil {
		panic(err)
	}

	release := make(chan struct{})
	calls := atomic.NewInt32(0)
	fetchServiceRequest := func(ctx context.Context) (string, error) {
		calls.Inc()
		<-release
		return "SR-2024-0042 (sim_card_issue)", nil
	}

	ctx := context.Background()
	first := queue.Submit(ctx, "service_requests/42", fetchServiceRequest)
	second := queue.Submit(ctx, "service_requests/42", fetchServiceRequest) // merged with the first one
	close(release)

	v1, _ := first.Wait(ctx)
	v2, _ := second.Wait(ctx)
	fmt.Println(v1)
	fmt.Println(v2)
	fmt.Println("backend calls:", calls.Load())

	// Output:
	// SR-2024-0042 (sim_card_issue)
	// SR-2024-0042 (sim_card_issue)
	// backend calls: 1
}
