package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-product-tracker/internal/filter"
	"github.com/maltedev/amazon-product-tracker/internal/jobs"
	"github.com/maltedev/amazon-product-tracker/internal/models"
)

var (
	searchJobFlags jobFlags

	searchStartPage  int
	searchMaxPages   int
	searchMinPrice   string
	searchMaxPrice   string
	searchMinRating  string
	searchMaxRating  string
	searchMinReviews string
	searchMaxRank    string
	searchBrands     []string
	searchInclude    []string
	searchExclude    []string
	searchSeller     string
	searchPrime      bool
	searchInStock    bool
	searchDiscount   bool
	searchCategory   string
)

func init() {
	searchJobFlags.register(searchCmd)

	fl := searchCmd.Flags()
	fl.IntVar(&searchStartPage, "start-page", 1, "First result page to visit.")
	fl.IntVar(&searchMaxPages, "pages", 1, "Number of result pages to visit.")
	fl.StringVar(&searchMinPrice, "min-price", "", "Minimum price; both 25.50 and 25,50 are accepted.")
	fl.StringVar(&searchMaxPrice, "max-price", "", "Maximum price.")
	fl.StringVar(&searchMinRating, "min-rating", "", "Minimum star rating (0-5).")
	fl.StringVar(&searchMaxRating, "max-rating", "", "Maximum star rating (0-5).")
	fl.StringVar(&searchMinReviews, "min-reviews", "", "Minimum number of reviews.")
	fl.StringVar(&searchMaxRank, "max-rank", "", "Worst acceptable best seller rank.")
	fl.StringSliceVar(&searchBrands, "brand", nil, "Accept only these brands, repeatable.")
	fl.StringSliceVar(&searchInclude, "include", nil, "Title must contain one of these keywords.")
	fl.StringSliceVar(&searchExclude, "exclude", nil, "Title must not contain any of these keywords.")
	fl.StringVar(&searchSeller, "seller", "", "Seller type: amazon, fba or fbm.")
	fl.BoolVar(&searchPrime, "prime", false, "Prime eligible products only.")
	fl.BoolVar(&searchInStock, "in-stock", false, "In-stock products only.")
	fl.BoolVar(&searchDiscount, "discount", false, "Discounted products only.")
	fl.StringVar(&searchCategory, "category", "", "Category node id to search in.")

	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search [keywords...]",
	Short: "Search the marketplace, filter the results and report the matching products.",
	Example: `  tracker search "usb c hub" --pages 3 --max-price 40 --min-rating 4 --prime
  tracker search --job-file hubs.yaml --format json -o hubs.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := searchJobFlags.baseJob()
		if err != nil {
			return err
		}
		job.Mode = jobs.ModeSearch
		if len(args) > 0 {
			job.SearchTerm = strings.Join(args, " ")
		}
		applySearchFlags(cmd, &job)
		if err := searchJobFlags.apply(cmd, &job); err != nil {
			return err
		}
		return runJob(cmd.Context(), job, &searchJobFlags)
	},
}

func applySearchFlags(cmd *cobra.Command, job *jobs.Job) {
	fl := cmd.Flags()
	if fl.Changed("start-page") {
		job.StartPage = searchStartPage
	}
	if fl.Changed("pages") {
		job.MaxPages = searchMaxPages
	}

	spec := &job.Filter
	setBound(cmd, "min-price", searchMinPrice, &spec.Price.Min)
	setBound(cmd, "max-price", searchMaxPrice, &spec.Price.Max)
	setBound(cmd, "min-rating", searchMinRating, &spec.Rating.Min)
	setBound(cmd, "max-rating", searchMaxRating, &spec.Rating.Max)
	setBound(cmd, "min-reviews", searchMinReviews, &spec.Reviews.Min)
	setBound(cmd, "max-rank", searchMaxRank, &spec.BestSellerRank.Max)

	if fl.Changed("brand") {
		spec.Brands = searchBrands
	}
	if fl.Changed("include") {
		spec.IncludeKeywords = searchInclude
	}
	if fl.Changed("exclude") {
		spec.ExcludeKeywords = searchExclude
	}
	if fl.Changed("seller") {
		spec.SellerType = models.ParseSellerType(searchSeller)
	}
	if fl.Changed("prime") {
		spec.PrimeOnly = searchPrime
	}
	if fl.Changed("in-stock") {
		spec.InStockOnly = searchInStock
	}
	if fl.Changed("discount") {
		spec.DiscountOnly = searchDiscount
	}
	if fl.Changed("category") {
		spec.CategoryNode = searchCategory
	}
}

// setBound overrides a bound only when its flag was given. An empty or
// unparsable value clears the bound.
func setBound(cmd *cobra.Command, name, raw string, dst *filter.Bound) {
	if cmd.Flags().Changed(name) {
		*dst = filter.ParseBound(raw)
	}
}
