// Package subvault provides an escrowed subscription engine for Go
// applications.
//
// Subvault is designed as a library, not a service. Providers publish plans;
// buyers pay the exact price for a term. Part of every payment goes to the
// provider at once, the rest is locked until the term matures and is
// refunded pro rata if the buyer cancels early. It provides:
//
//   - Day-bucketed locked-funds ledger per provider
//   - Integer refund arithmetic with floor division
//   - All-or-nothing calls: store writes and payouts commit together
//   - Pluggable stores (memory, PostgreSQL, SQLite, MongoDB)
//   - Pluggable treasuries (memory, Redis)
//   - Audit trail and metrics via plugins
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/subvault"
//	    "github.com/xraph/subvault/store/postgres"
//	    treasurymem "github.com/xraph/subvault/treasury/memory"
//	)
//
//	s, err := postgres.Open(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sv := subvault.New(s, treasurymem.New())
//	if err := sv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sv.Stop(ctx)
//
// # Core Concepts
//
// A plan's terms fix the price, the duration and the refundable share in
// permille:
//
//	first, err := sv.AddPlans(ctx, providerID, []plan.Plan{{
//	    Terms: plan.Terms{
//	        Duration:          30 * 24 * time.Hour,
//	        Price:             100,
//	        MaxRefundPermille: 500,
//	    },
//	}})
//
// Subscribing pays price×(1000−permille)/1000 to the provider and locks the
// rest at the maturity day:
//
//	rec, err := sv.Subscribe(ctx, subvault.SubscribeRequest{
//	    Buyer:     buyerID,
//	    Provider:  providerID,
//	    PlanIndex: first,
//	    Payment:   100,
//	})
//
// Refund returns the unused share of the price, capped at the locked amount.
// Withdraw pays the provider every lock whose day has passed.
//
// # Plugins
//
// Plugins implement any of the hook interfaces in package plugin and are
// registered with WithPlugin. Hooks run after the call has committed.
package subvault
