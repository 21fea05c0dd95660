package steps

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cucumber/godog"

	"github.com/modula-erp/emag-sync-go/internal/domain/matching"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

type supplierMatchContext struct {
	clock           *shared.MockClock
	row             *matching.SupplierProduct
	transitionError error
}

func (mc *supplierMatchContext) reset() {
	mc.clock = shared.NewMockClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	mc.row = nil
	mc.transitionError = nil
}

// Given steps

func (mc *supplierMatchContext) anIngestedSupplierProductNamed(name string) error {
	mc.row = matching.NewSupplierProduct(1, name, mc.clock.Now())
	mc.row.ID = 7
	return nil
}

func (mc *supplierMatchContext) aSupplierProductPendingAgainstProduct(productID int) error {
	if err := mc.anIngestedSupplierProductNamed("Rulment radial 6204 2RS"); err != nil {
		return err
	}
	return mc.row.LinkPending(int64(productID), 0.9, mc.clock.Now())
}

func (mc *supplierMatchContext) aSupplierProductConfirmedAgainstProduct(productID int) error {
	if err := mc.aSupplierProductPendingAgainstProduct(productID); err != nil {
		return err
	}
	return mc.row.Confirm("ana", mc.clock.Now())
}

// When steps

func (mc *supplierMatchContext) theMatcherLinksItToProductWithScore(productID int, score string) error {
	if mc.row == nil {
		return fmt.Errorf("no supplier product available")
	}
	s, err := strconv.ParseFloat(score, 64)
	if err != nil {
		return err
	}
	mc.transitionError = mc.row.LinkPending(int64(productID), s, mc.clock.Now())
	return nil
}

func (mc *supplierMatchContext) theOperatorConfirmsTheMatch(operator string) error {
	if mc.row == nil {
		return fmt.Errorf("no supplier product available")
	}
	mc.transitionError = mc.row.Confirm(operator, mc.clock.Now())
	return nil
}

func (mc *supplierMatchContext) theOperatorRejectsTheMatch() error {
	if mc.row == nil {
		return fmt.Errorf("no supplier product available")
	}
	mc.transitionError = mc.row.Reject(mc.clock.Now())
	return nil
}

func (mc *supplierMatchContext) theOperatorUnmatchesTheRow() error {
	if mc.row == nil {
		return fmt.Errorf("no supplier product available")
	}
	mc.transitionError = mc.row.Unmatch(mc.clock.Now())
	return nil
}

// Then steps

func (mc *supplierMatchContext) theMatchStateShouldBe(expected string) error {
	if mc.row == nil {
		return fmt.Errorf("no supplier product available")
	}
	if mc.transitionError != nil {
		return fmt.Errorf("unexpected transition error: %v", mc.transitionError)
	}
	if string(mc.row.State()) != expected {
		return fmt.Errorf("expected state %s, got %s", expected, mc.row.State())
	}
	return nil
}

func (mc *supplierMatchContext) theSimilarityScoreShouldBe(score string) error {
	expected, err := strconv.ParseFloat(score, 64)
	if err != nil {
		return err
	}
	if mc.row.SimilarityScore == nil {
		return fmt.Errorf("similarity score should be set but was nil")
	}
	if *mc.row.SimilarityScore != expected {
		return fmt.Errorf("expected score %v, got %v", expected, *mc.row.SimilarityScore)
	}
	return nil
}

func (mc *supplierMatchContext) theConfirmingOperatorShouldBe(expected string) error {
	if mc.row.ConfirmedBy != expected {
		return fmt.Errorf("expected confirming operator %q, got %q", expected, mc.row.ConfirmedBy)
	}
	if mc.row.ConfirmedAt == nil {
		return fmt.Errorf("confirmation timestamp should be set but was nil")
	}
	return nil
}

func (mc *supplierMatchContext) theRowShouldCarryNoScoreOrConfirmation() error {
	if err := mc.row.Validate(); err != nil {
		return err
	}
	if mc.row.SimilarityScore != nil || mc.row.ManualConfirmed != nil || mc.row.ConfirmedAt != nil || mc.row.ConfirmedBy != "" {
		return fmt.Errorf("link residue left on unmatched row")
	}
	return nil
}

func (mc *supplierMatchContext) theMatchOperationShouldFailWith(expected string) error {
	if mc.transitionError == nil {
		return fmt.Errorf("expected match operation to fail with %q, but it succeeded", expected)
	}
	if mc.transitionError.Error() != expected {
		return fmt.Errorf("expected error %q, got %q", expected, mc.transitionError.Error())
	}
	return nil
}

// InitializeSupplierMatchScenario registers the supplier match state steps
func InitializeSupplierMatchScenario(ctx *godog.ScenarioContext) {
	mc := &supplierMatchContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		mc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^an ingested supplier product named "([^"]*)"$`, mc.anIngestedSupplierProductNamed)
	ctx.Step(`^a supplier product pending against product (\d+)$`, mc.aSupplierProductPendingAgainstProduct)
	ctx.Step(`^a supplier product confirmed against product (\d+)$`, mc.aSupplierProductConfirmedAgainstProduct)

	// When steps
	ctx.Step(`^the matcher links it to product (\d+) with score ([0-9.]+)$`, mc.theMatcherLinksItToProductWithScore)
	ctx.Step(`^the operator "([^"]*)" confirms the match$`, mc.theOperatorConfirmsTheMatch)
	ctx.Step(`^the operator rejects the match$`, mc.theOperatorRejectsTheMatch)
	ctx.Step(`^the operator unmatches the row$`, mc.theOperatorUnmatchesTheRow)

	// Then steps
	ctx.Step(`^the match state should be "([^"]*)"$`, mc.theMatchStateShouldBe)
	ctx.Step(`^the similarity score should be ([0-9.]+)$`, mc.theSimilarityScoreShouldBe)
	ctx.Step(`^the confirming operator should be "([^"]*)"$`, mc.theConfirmingOperatorShouldBe)
	ctx.Step(`^the row should carry no score or confirmation$`, mc.theRowShouldCarryNoScoreOrConfirmation)
	ctx.Step(`^the match operation should fail with "([^"]*)"$`, mc.theMatchOperationShouldFailWith)
}
