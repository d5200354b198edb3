package schema

// Builtin returns a registry preloaded with the two worked category schemas.
// Weights, caps, and synonym groupings are tuned configuration, not derived
// constants; production deployments override them with schema files.
func Builtin() (*Registry, error) {
	return NewRegistry(TopsSchema(), ShoesSchema())
}

// TopsSchema is the worked schema for sweaters, tees, and other tops.
func TopsSchema() *CategorySchema {
	return &CategorySchema{
		Name:                "tops",
		DisplayName:         "Tops & Sweaters",
		MinMatchScore:       75,
		CriticalMismatchCap: 65,
		FamilyCredit:        0.70,
		MinCompleteness:     40,
		Attributes: []AttributeDefinition{
			{
				Name: "color", Kind: KindString, Required: true, Weight: 25,
				SynonymGroups: []SynonymGroup{
					{Canonical: "green", Terms: []string{"olive", "olive green", "army green", "khaki", "sage", "forest green"}},
					{Canonical: "blue", Terms: []string{"navy", "navy blue", "cobalt", "royal blue", "denim blue"}},
					{Canonical: "red", Terms: []string{"burgundy", "maroon", "wine", "crimson", "brick"}},
					{Canonical: "neutral", Terms: []string{"beige", "tan", "cream", "off white", "ivory", "oatmeal"}},
					{Canonical: "grey", Terms: []string{"gray", "grey", "charcoal", "heather grey", "heather gray"}},
				},
			},
			{
				Name: "neckline", Kind: KindString, Required: true, DealBreaker: true, Weight: 10,
				SynonymGroups: []SynonymGroup{
					{Canonical: "crew", Terms: []string{"crew", "crew neck", "crewneck", "round neck"}},
					{Canonical: "vneck", Terms: []string{"v neck", "v-neck", "vee neck"}},
					{Canonical: "mock", Terms: []string{"mock neck", "mockneck", "funnel neck"}},
					{Canonical: "turtleneck", Terms: []string{"turtleneck", "turtle neck", "roll neck"}},
					{Canonical: "scoop", Terms: []string{"scoop neck", "scoopneck", "u neck"}},
				},
			},
			{
				Name: "sleeve_length", Kind: KindString, Required: true, Weight: 8,
				SynonymGroups: []SynonymGroup{
					{Canonical: "long", Terms: []string{"long", "long sleeve", "full sleeve"}},
					{Canonical: "short", Terms: []string{"short", "short sleeve", "half sleeve"}},
					{Canonical: "sleeveless", Terms: []string{"sleeveless", "tank", "no sleeve"}},
					{Canonical: "three_quarter", Terms: []string{"3/4", "three quarter", "elbow"}},
				},
			},
			{
				Name: "pattern", Kind: KindString, Weight: 12,
				SynonymGroups: []SynonymGroup{
					{Canonical: "solid", Terms: []string{"solid", "plain", "no pattern"}},
					{Canonical: "stripe", Terms: []string{"stripe", "striped", "stripes", "pinstripe"}},
					{Canonical: "cable", Terms: []string{"cable", "cable knit", "cabled"}},
					{Canonical: "plaid", Terms: []string{"plaid", "check", "checked", "tartan"}},
				},
			},
			{
				Name: "material", Kind: KindString, Required: true, DealBreaker: true, Weight: 15,
				SynonymGroups: []SynonymGroup{
					{Canonical: "wool", Terms: []string{"wool", "merino", "merino wool", "lambswool"}},
					{Canonical: "cashmere", Terms: []string{"cashmere", "cashmere blend"}},
					{Canonical: "cotton", Terms: []string{"cotton", "cotton blend", "organic cotton"}},
					{Canonical: "synthetic", Terms: []string{"polyester", "acrylic", "nylon", "poly blend"}},
				},
			},
			{
				Name: "fit", Kind: KindString, Weight: 10,
				SynonymGroups: []SynonymGroup{
					{Canonical: "oversized", Terms: []string{"oversized", "oversize", "loose", "relaxed", "boxy"}},
					{Canonical: "fitted", Terms: []string{"fitted", "slim", "slim fit", "tailored"}},
					{Canonical: "regular", Terms: []string{"regular", "classic", "standard"}},
				},
			},
			{
				// Texture reads differently frame to frame; a mismatch should
				// not zero out an otherwise strong candidate.
				Name: "texture", Kind: KindString, Weight: 8, MismatchFloor: 0.25,
				SynonymGroups: []SynonymGroup{
					{Canonical: "ribbed", Terms: []string{"ribbed", "rib", "rib knit"}},
					{Canonical: "chunky", Terms: []string{"chunky", "chunky knit", "heavy knit"}},
					{Canonical: "smooth", Terms: []string{"smooth", "fine knit", "fine gauge", "jersey"}},
				},
			},
			{Name: "brand", Kind: KindString, Weight: 12},
		},
	}
}

// ShoesSchema is the worked schema for footwear.
func ShoesSchema() *CategorySchema {
	return &CategorySchema{
		Name:                "shoes",
		DisplayName:         "Shoes",
		MinMatchScore:       70,
		CriticalMismatchCap: 60,
		FamilyCredit:        0.75,
		MinCompleteness:     40,
		Attributes: []AttributeDefinition{
			{
				Name: "color", Kind: KindString, Required: true, DealBreaker: true, Weight: 20,
				SynonymGroups: []SynonymGroup{
					{Canonical: "white", Terms: []string{"white", "off white", "cream", "bone"}},
					{Canonical: "black", Terms: []string{"black", "jet black", "onyx"}},
					{Canonical: "brown", Terms: []string{"brown", "tan", "cognac", "chestnut", "chocolate"}},
					{Canonical: "beige", Terms: []string{"beige", "sand", "taupe", "nude"}},
				},
			},
			{
				Name: "style", Kind: KindEnum, Required: true, DealBreaker: true, Weight: 20,
				EnumValues: []string{"sneaker", "boot", "loafer", "heel", "sandal", "flat", "mule"},
				SynonymGroups: []SynonymGroup{
					{Canonical: "sneaker", Terms: []string{"sneaker", "trainer", "tennis shoe", "athletic shoe"}},
					{Canonical: "boot", Terms: []string{"boot", "bootie", "ankle boot", "chelsea boot"}},
					{Canonical: "loafer", Terms: []string{"loafer", "slip on", "slip-on", "moccasin"}},
					{Canonical: "heel", Terms: []string{"heel", "pump", "stiletto"}},
				},
			},
			{Name: "brand", Kind: KindString, Weight: 15},
			{
				Name: "material", Kind: KindString, Required: true, Weight: 15,
				SynonymGroups: []SynonymGroup{
					{Canonical: "leather", Terms: []string{"leather", "full grain", "calfskin", "patent leather"}},
					{Canonical: "suede", Terms: []string{"suede", "nubuck"}},
					{Canonical: "canvas", Terms: []string{"canvas", "fabric", "textile", "mesh"}},
				},
			},
			{Name: "sole_color", Kind: KindString, Weight: 5, MismatchFloor: 0.2},
			{
				Name: "toe_shape", Kind: KindString, Weight: 10, MismatchFloor: 0.2,
				SynonymGroups: []SynonymGroup{
					{Canonical: "round", Terms: []string{"round", "rounded", "round toe"}},
					{Canonical: "pointed", Terms: []string{"pointed", "pointy", "point toe"}},
					{Canonical: "square", Terms: []string{"square", "square toe"}},
				},
			},
			{Name: "heel_height_cm", Kind: KindNumber, Weight: 10},
			{
				Name: "lace_type", Kind: KindString, Weight: 5,
				SynonymGroups: []SynonymGroup{
					{Canonical: "laced", Terms: []string{"laces", "laced", "lace up", "lace-up"}},
					{Canonical: "laceless", Terms: []string{"laceless", "no laces", "slip on", "velcro"}},
				},
			},
		},
	}
}
