package prompt

// Identification returns the medication identification prompt. The model
// must answer with one strict JSON object using these exact keys; the
// parser's embedded-JSON and labelled-line strategies exist only as
// defensive fallbacks for models that ignore the format instruction.
func Identification() string {
	return `Analyse cette image de médicament et identifie-le avec précision.
Fournis les informations suivantes au format JSON strict:

{
  "nom": "nom commercial du médicament",
  "description": "brève description du médicament et son usage principal",
  "nomCommercial": "nom commercial complet avec dosage",
  "laboratoire": "fabricant du médicament",
  "dci": "principe(s) actif(s) / Dénomination Commune Internationale",
  "formePharmaceutique": "comprimé, gélule, sirop, etc.",
  "dosage": "quantité de principe actif",
  "classeTherapeutique": "catégorie pharmacologique",
  "indicationsTherapeutiques": "pathologies traitées et usages thérapeutiques",
  "posologie": "instructions de prise et dosage recommandé",
  "contreIndications": "situations où ce médicament ne doit pas être utilisé",
  "effetsSecondaires": "effets indésirables possibles",
  "interactions": "interactions avec d'autres médicaments ou substances",
  "precautionsEmploi": "précautions particulières à prendre",
  "conservation": "conditions de conservation"
}

Si tu ne peux pas identifier le médicament avec certitude, réponds avec:
{"nom": "Médicament non identifié", "description": "L'image ne permet pas d'identifier le médicament avec certitude."}

IMPORTANT: Réponds UNIQUEMENT avec le JSON formaté, sans texte supplémentaire.`
}
