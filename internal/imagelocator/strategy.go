package imagelocator

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// Strategy picks at most one element from an article page that may carry
// the article's representative image. Strategies are evaluated in order and
// the first one whose element yields an acceptable URL wins.
type Strategy struct {
	Name   string
	Select func(doc *goquery.Document) *goquery.Selection
}

var (
	imageClassPattern     = regexp.MustCompile(`(?i)article|news|content|photo`)
	containerClassPattern = regexp.MustCompile(`(?i)article|content|body`)
)

// DefaultStrategies returns the stock extraction order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		ClassedImage(imageClassPattern),
		MetaProperty("og:image"),
		MetaName("twitter:image"),
		ImageInContainer("div", containerClassPattern),
		FirstImage(),
	}
}

// ClassedImage matches the first img whose class attribute matches pattern.
func ClassedImage(pattern *regexp.Regexp) Strategy {
	return Strategy{
		Name: "img-class",
		Select: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("img").FilterFunction(classMatches(pattern)).First()
		},
	}
}

// MetaProperty matches <meta property="..."> such as og:image.
func MetaProperty(property string) Strategy {
	return Strategy{
		Name: "meta-property:" + property,
		Select: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(`meta[property="` + property + `"]`).First()
		},
	}
}

// MetaName matches <meta name="..."> such as twitter:image.
func MetaName(name string) Strategy {
	return Strategy{
		Name: "meta-name:" + name,
		Select: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(`meta[name="` + name + `"]`).First()
		},
	}
}

// ImageInContainer matches the first img nested in a container element
// whose class attribute matches pattern.
func ImageInContainer(container string, pattern *regexp.Regexp) Strategy {
	return Strategy{
		Name: "container-img:" + container,
		Select: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(container).FilterFunction(classMatches(pattern)).Find("img").First()
		},
	}
}

// FirstImage matches the first img in the document.
func FirstImage() Strategy {
	return Strategy{
		Name: "first-img",
		Select: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("img").First()
		},
	}
}

func classMatches(pattern *regexp.Regexp) func(int, *goquery.Selection) bool {
	return func(_ int, sel *goquery.Selection) bool {
		class, ok := sel.Attr("class")
		return ok && pattern.MatchString(class)
	}
}
